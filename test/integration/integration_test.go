//go:build integration

// Package integration_test contains end-to-end tests that need a running
// stack of two containers:
//
//   - bind9: RFC2136-capable DNS server for example.com, listening on
//     127.0.0.1:5354, seeded with manual.example.com A 10.0.0.1
//   - dyndns-updater: the daemon under test, started with
//     --provider rfc2136 --domain home.example.com --ip-source static:10.99.1.1
//     --docker-labels --period 5 --debounce 1s and the host Docker socket
//
// Run with:
//
//	go test -v -tags integration ./test/integration/...
package integration_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	dockerimage "github.com/docker/docker/api/types/image"
	dockerclient "github.com/docker/docker/client"
	"github.com/miekg/dns"
)

// ---- Test configuration ----

const (
	bindAddr = "127.0.0.1:5354"
	zone     = "example.com"

	// publicIP is the address the daemon under test publishes.
	publicIP = "10.99.1.1"

	testImage = "busybox:latest"

	// sweepTimeout covers one period plus the debounce window.
	sweepTimeout = 20 * time.Second
)

func TestMain(m *testing.M) {
	if !waitForBIND9(30 * time.Second) {
		fmt.Fprintln(os.Stderr, "BIND9 not reachable at "+bindAddr)
		os.Exit(1)
	}
	if err := ensureTestImage(); err != nil {
		fmt.Fprintf(os.Stderr, "prepare test image %s: %v\n", testImage, err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// waitForBIND9 retries an SOA query until BIND9 answers or timeout passes.
func waitForBIND9(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	c := new(dns.Client)
	for time.Now().Before(deadline) {
		m := new(dns.Msg)
		m.SetQuestion(dns.Fqdn(zone), dns.TypeSOA)
		r, _, err := c.Exchange(m, bindAddr)
		if err == nil && r.Rcode == dns.RcodeSuccess {
			return true
		}
		time.Sleep(500 * time.Millisecond)
	}
	return false
}

func ensureTestImage() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("docker client: %w", err)
	}
	defer cli.Close()

	if _, err := cli.ImageInspect(ctx, testImage); err == nil {
		return nil
	}
	rc, err := cli.ImagePull(ctx, testImage, dockerimage.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull %s: %w", testImage, err)
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}

// ---- Container helpers ----

func newDockerClient(t *testing.T) *dockerclient.Client {
	t.Helper()
	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		t.Fatalf("docker client: %v", err)
	}
	t.Cleanup(func() { cli.Close() })
	return cli
}

// runLabeled starts a detached container carrying labels. It is
// force-removed when the test ends.
func runLabeled(t *testing.T, labels map[string]string) string {
	t.Helper()
	ctx := context.Background()
	cli := newDockerClient(t)

	resp, err := cli.ContainerCreate(ctx,
		&container.Config{Image: testImage, Cmd: []string{"sleep", "3600"}, Labels: labels},
		nil, nil, nil, "")
	if err != nil {
		t.Fatalf("ContainerCreate: %v", err)
	}
	t.Cleanup(func() {
		cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
	})
	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		t.Fatalf("ContainerStart: %v", err)
	}
	return resp.ID
}

func stopContainer(t *testing.T, id string) {
	t.Helper()
	zero := 0
	if err := newDockerClient(t).ContainerStop(context.Background(), id, container.StopOptions{Timeout: &zero}); err != nil {
		t.Fatalf("ContainerStop %s: %v", id[:12], err)
	}
}

// ---- DNS helpers ----

func queryA(fqdn string) []string {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(fqdn), dns.TypeA)
	r, _, err := new(dns.Client).Exchange(m, bindAddr)
	if err != nil || r.Rcode != dns.RcodeSuccess {
		return nil
	}
	var ips []string
	for _, rr := range r.Answer {
		if a, ok := rr.(*dns.A); ok {
			ips = append(ips, a.A.String())
		}
	}
	return ips
}

// waitForA polls until fqdn resolves to exactly want or sweepTimeout expires.
func waitForA(t *testing.T, fqdn, want string) {
	t.Helper()
	deadline := time.Now().Add(sweepTimeout)
	for time.Now().Before(deadline) {
		if got := queryA(fqdn); len(got) == 1 && got[0] == want {
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Errorf("A %s = %v after %v, want [%s]", fqdn, queryA(fqdn), sweepTimeout, want)
}

// ---- Tests ----

func TestConfiguredDomain_Published(t *testing.T) {
	waitForA(t, "home.example.com", publicIP)
}

func TestLabeledContainer_Published(t *testing.T) {
	fqdn := "e2e-label.example.com"
	runLabeled(t, map[string]string{"dyndns.domain": fqdn})
	waitForA(t, fqdn, publicIP)
}

// Stopping a container drops its domain from future sweeps but never
// removes the published record.
func TestStoppedContainer_RecordKept(t *testing.T) {
	fqdn := "e2e-stop.example.com"
	id := runLabeled(t, map[string]string{"dyndns.domain-0": fqdn})
	waitForA(t, fqdn, publicIP)

	stopContainer(t, id)
	time.Sleep(sweepTimeout / 2)
	waitForA(t, fqdn, publicIP)
}

func TestUnmanagedRecord_Untouched(t *testing.T) {
	waitForA(t, "manual.example.com", "10.0.0.1")
}
