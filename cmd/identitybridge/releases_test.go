package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/roaddetection/identitybridge/internal/testutil"
)

// releaseServer serves a release API for owner/repo with one release
// publishing apk and its checksum file.
func releaseServer(t *testing.T, apk []byte) *httptest.Server {
	t.Helper()

	sum := sha256.Sum256(apk)
	checksums := hex.EncodeToString(sum[:]) + "  app-release.apk\n"

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	stable := func() string {
		return fmt.Sprintf(`{"tag_name":"v1.2.0","name":"VGTec 1.2.0","published_at":"2024-05-01T10:00:00Z","assets":[
		  {"name":"app-release.apk","size":%d,"browser_download_url":"%s/download/app-release.apk"},
		  {"name":"SHA256SUMS","size":%d,"browser_download_url":"%s/download/SHA256SUMS"}
		]}`, len(apk), server.URL, len(checksums), server.URL)
	}

	mux.HandleFunc("/repos/owner/app/releases", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[%s, {"tag_name":"v1.2.0-beta","prerelease":true,"published_at":"2024-04-01T00:00:00Z","assets":[]}]`, stable())
	})
	mux.HandleFunc("/repos/owner/app/releases/tags/v1.2.0", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, stable())
	})
	mux.HandleFunc("/download/app-release.apk", func(w http.ResponseWriter, r *http.Request) {
		w.Write(apk)
	})
	mux.HandleFunc("/download/SHA256SUMS", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(checksums))
	})

	return server
}

func TestRunReleases(t *testing.T) {
	testutil.SetupTestEnv(t)
	server := releaseServer(t, []byte("apk"))

	var out bytes.Buffer
	err := runReleases([]string{"--owner", "owner", "--repo", "app", "--api-url", server.URL}, &out)
	if err != nil {
		t.Fatalf("runReleases() error = %v", err)
	}
	for _, want := range []string{"owner/app", "v1.2.0-beta (pre-release)", "no APK", "v1.2.0", "2024-05-01", "app-release.apk (3 B)"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunReleases_JSON(t *testing.T) {
	testutil.SetupTestEnv(t)
	server := releaseServer(t, []byte("apk"))

	var out bytes.Buffer
	err := runReleases([]string{"--owner=owner", "--repo=app", "--api-url=" + server.URL, "-f", "json"}, &out)
	if err != nil {
		t.Fatalf("runReleases() error = %v", err)
	}

	var summaries []releaseSummary
	if err := json.Unmarshal(out.Bytes(), &summaries); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out.String())
	}
	if len(summaries) != 2 || summaries[0].APK != "app-release.apk" || !summaries[1].Prerelease {
		t.Errorf("summaries = %+v", summaries)
	}
}

func TestRunReleases_Errors(t *testing.T) {
	testutil.SetupTestEnv(t)
	server := releaseServer(t, []byte("apk"))

	tests := [][]string{
		{"--owner", "missing", "--repo", "app", "--api-url", server.URL},
		{"--owner", "bad owner"},
		{"--api-url", "ftp://example.com"},
		{"--limit", "3"},
	}
	for _, args := range tests {
		if err := runReleases(args, &bytes.Buffer{}); err == nil {
			t.Errorf("runReleases(%v) expected error", args)
		}
	}
}

func TestRunFetch(t *testing.T) {
	dir := testutil.SetupTestEnv(t)

	signer := testutil.NewSigner(t, "release")
	apkPath := testutil.WriteAPK(t, t.TempDir(), "app-release.apk", testutil.APKOptions{
		V1: []*testutil.Signer{signer},
		V2: []*testutil.Signer{signer},
	})
	apk, err := os.ReadFile(apkPath)
	if err != nil {
		t.Fatal(err)
	}
	server := releaseServer(t, apk)
	repoArgs := []string{"--owner", "owner", "--repo", "app", "--api-url", server.URL}

	t.Run("match", func(t *testing.T) {
		var out bytes.Buffer
		code, err := runFetch(append(repoArgs, "--expect", expectedSignature(signer)), &out)
		if err != nil || code != exitOK {
			t.Fatalf("runFetch() = %d, %v\n%s", code, err, out.String())
		}
		for _, want := range []string{"Release:   v1.2.0 (VGTec 1.2.0)", "SHA256   ok", expectedSignature(signer), "Expected:  match"} {
			if !strings.Contains(out.String(), want) {
				t.Errorf("output missing %q:\n%s", want, out.String())
			}
		}
		if _, err := os.Stat(dir + "/cache/releases/v1.2.0/app-release.apk"); err != nil {
			t.Errorf("APK not cached: %v", err)
		}
	})

	t.Run("mismatch", func(t *testing.T) {
		other := testutil.NewSigner(t, "impostor")
		code, err := runFetch(append(repoArgs, "--expect", expectedSignature(other)), &bytes.Buffer{})
		if err == nil || code != exitMismatch {
			t.Errorf("runFetch() = %d, %v, want exit %d", code, err, exitMismatch)
		}
	})

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		code, err := runFetch(append(repoArgs, "--tag", "v1.2.0", "--format", "json"), &out)
		if err != nil || code != exitOK {
			t.Fatalf("runFetch() = %d, %v", code, err)
		}
		var result struct {
			Tag          string `json:"tag"`
			Verification []struct {
				Method  string `json:"method"`
				Success bool   `json:"success"`
			} `json:"verification"`
			Inspection struct {
				Signature string `json:"signature"`
			} `json:"inspection"`
		}
		if err := json.Unmarshal(out.Bytes(), &result); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, out.String())
		}
		if result.Tag != "v1.2.0" || result.Inspection.Signature != expectedSignature(signer) {
			t.Errorf("result = %+v", result)
		}
		if len(result.Verification) != 1 || result.Verification[0].Method != "SHA256" || !result.Verification[0].Success {
			t.Errorf("verification = %+v", result.Verification)
		}
	})

	t.Run("invalid expectation", func(t *testing.T) {
		code, err := runFetch(append(repoArgs, "--expect", "SHA1: nope"), &bytes.Buffer{})
		if err == nil || code != exitError {
			t.Errorf("runFetch() = %d, %v", code, err)
		}
	})
}
