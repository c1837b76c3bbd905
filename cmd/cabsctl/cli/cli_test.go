//go:build integration

package cli_test

import (
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"

	"github.com/cabshq/cabs/cmd/cabsctl/cli"
	"github.com/cabshq/cabs/core"
	"github.com/cabshq/cabs/internal/auth"
	"github.com/cabshq/cabs/internal/backend"
	"github.com/cabshq/cabs/internal/coreapi"
	"github.com/cabshq/cabs/internal/digest"
	"github.com/cabshq/cabs/internal/httpapi"
	"github.com/cabshq/cabs/internal/rowstore/memstore"
)

// helloContent and publicContent must stay byte-for-byte identical to the
// "-- hello.txt --" and "-- public.txt --" sections embedded in the .txtar
// scripts under testdata/script: the scripts reference their digests
// (computed once here, in Go, rather than hardcoded) via $HELLO_DIGEST and
// $PUBLIC_DIGEST.
const (
	helloContent  = "hello from cabsctl integration test\n"
	publicContent = "a blob visible to every user\n"
)

// serverURL holds the in-process cabsd server's address for all scripts.
// Unlike the teacher's cli_test.go (which needs a real OCI registry
// container), cabsctl only talks to cabsd's own HTTP wire protocol, so an
// httptest.Server in the test binary itself is enough; no testcontainers
// dependency is needed here.
var serverURL string

func TestMain(m *testing.M) {
	svc := coreapi.New(backend.NewInMemory(0), memstore.New(), nil)
	resolver := auth.NewStaticResolver()
	resolver.Register("test-token", core.User{ID: "u1", Username: "alice"})
	resolver.Register("other-token", core.User{ID: "u2", Username: "bob"})
	srv := httptest.NewServer(httpapi.NewServer(svc, resolver))
	serverURL = srv.URL

	exitCode := testscript.RunMain(m, map[string]func() int{
		"cabsctl": func() int {
			if err := cli.Execute(); err != nil {
				return 1
			}
			return 0
		},
	})

	srv.Close()
	os.Exit(exitCode)
}

func TestCLI(t *testing.T) {
	helloDigest, _, err := digest.New().Sum(strings.NewReader(helloContent))
	if err != nil {
		t.Fatal(err)
	}
	publicDigest, _, err := digest.New().Sum(strings.NewReader(publicContent))
	if err != nil {
		t.Fatal(err)
	}

	testscript.Run(t, testscript.Params{
		Dir: "testdata/script",
		Setup: func(env *testscript.Env) error {
			env.Setenv("CABSCTL_SERVER_ADDRESS", serverURL)
			env.Setenv("CABSCTL_SERVER_TOKEN", "test-token")
			env.Setenv("OTHER_TOKEN", "other-token")
			env.Setenv("HELLO_DIGEST", string(helloDigest))
			env.Setenv("PUBLIC_DIGEST", string(publicDigest))
			// testscript sets HOME to a read-only sandbox dir; redirect the
			// XDG config path into the per-test work directory.
			env.Setenv("XDG_CONFIG_HOME", env.WorkDir+"/.config")
			env.Setenv("CABSCTL_PROGRESS", "plain")
			return nil
		},
	})
}
