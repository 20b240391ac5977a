package storage

import (
	"context"
	"errors"
	"io"
	"reflect"
	"testing"
)

// fakeStore is a minimal Store implementation for registry tests.
type fakeStore struct{ url string }

func (f *fakeStore) List(context.Context, string) ([]Object, error)      { return nil, nil }
func (f *fakeStore) Open(context.Context, string) (io.ReadCloser, error) { return nil, ErrNotFound }
func (f *fakeStore) Put(context.Context, string, io.Reader) error        { return nil }
func (f *fakeStore) Delete(context.Context, string) error                { return nil }
func (f *fakeStore) DeletePrefix(context.Context, string) error          { return nil }
func (f *fakeStore) URL() string                                         { return f.url }

func TestRegisterAndNew_Success(t *testing.T) {
	t.Parallel()

	Register("fake", func(ctx context.Context, cfg Config) (Store, error) {
		return &fakeStore{url: cfg.URL}, nil
	})

	s, err := New(context.Background(), Config{URL: "fake://bucket/x"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if s.URL() != "fake://bucket/x" {
		t.Fatalf("URL = %q", s.URL())
	}

	found := false
	for _, k := range ListKinds() {
		if k == "fake" {
			found = true
		}
	}
	if !found {
		t.Fatalf("registered scheme not present in ListKinds: %v", ListKinds())
	}
}

func TestNew_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{URL: "gopher://x"})
	if err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
	if got, want := err.Error(), "unsupported storage scheme=gopher"; got != want {
		t.Fatalf("error = %q, want %q", got, want)
	}
}

func TestRegister_AllowsErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	Register("broken", func(context.Context, Config) (Store, error) { return nil, boom })
	if _, err := New(context.Background(), Config{URL: "broken://x"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestListKinds_Snapshot(t *testing.T) {
	t.Parallel()

	Register("snap", func(context.Context, Config) (Store, error) { return &fakeStore{}, nil })
	a := ListKinds()
	a[0] = "mutated"
	if reflect.DeepEqual(a, ListKinds()) {
		t.Fatalf("ListKinds returned same slice; want snapshot copy")
	}
}

func TestSchemeAndPaths(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"/data/out":         "file",
		"out":               "file",
		"file:///data":      "file",
		"s3://bucket/x":     "s3",
		"S3://bucket/x":     "s3",
		"C:\\data\\out.txt": "file",
	}
	for in, want := range cases {
		if got := Scheme(in); got != want {
			t.Fatalf("Scheme(%q) = %q, want %q", in, got, want)
		}
	}

	b, p, err := SplitBucket("s3://udacity-dend/song_data/A/")
	if err != nil || b != "udacity-dend" || p != "song_data/A" {
		t.Fatalf("SplitBucket = %q,%q,%v", b, p, err)
	}
	if _, _, err := SplitBucket("s3:///nobucket"); err == nil {
		t.Fatalf("SplitBucket without bucket: want error")
	}
	if got := Join("songplays/", "", "/year=2018", "month=11/"); got != "songplays/year=2018/month=11" {
		t.Fatalf("Join = %q", got)
	}
	if got := LocalPath("file:///tmp/x"); got != "/tmp/x" {
		t.Fatalf("LocalPath = %q", got)
	}
}
