package tts_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/haivivi/speakd/pkg/tts"
)

type stubSynth struct {
	result *tts.Result
	err    error
	gotReq tts.Request
	calls  int
}

func (s *stubSynth) Synthesize(_ context.Context, req tts.Request) (*tts.Result, error) {
	s.gotReq = req
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func TestMux_Routing(t *testing.T) {
	mux := tts.NewMux()
	cloud := &stubSynth{result: &tts.Result{Audio: []byte("cloud"), MIME: tts.MIMEMP3}}
	local := &stubSynth{result: &tts.Result{Audio: []byte("local"), MIME: tts.MIMEWAV}}

	if err := mux.Handle("openai", cloud); err != nil {
		t.Fatal(err)
	}
	if err := mux.Handle("piper/**", local); err != nil {
		t.Fatal(err)
	}

	res, err := mux.Synthesize(context.Background(), "openai", tts.Request{Text: "hi", Voice: "nova"})
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Audio) != "cloud" {
		t.Fatalf("routed to wrong synthesizer: %q", res.Audio)
	}
	if cloud.gotReq.Text != "hi" || cloud.gotReq.Voice != "nova" {
		t.Fatalf("request not passed through: %+v", cloud.gotReq)
	}

	res, err = mux.Synthesize(context.Background(), "piper/en_US-amy", tts.Request{Text: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Audio) != "local" {
		t.Fatalf("wildcard route got %q, want local", res.Audio)
	}
}

func TestMux_UnknownProvider(t *testing.T) {
	mux := tts.NewMux()
	_, err := mux.Synthesize(context.Background(), "nope", tts.Request{Text: "x"})
	if !errors.Is(err, tts.ErrProviderUnknown) {
		t.Fatalf("error = %v, want ErrProviderUnknown", err)
	}
}

func TestMux_ReplaceOnReregister(t *testing.T) {
	mux := tts.NewMux()
	first := &stubSynth{result: &tts.Result{Audio: []byte("first")}}
	second := &stubSynth{result: &tts.Result{Audio: []byte("second")}}

	if err := mux.Handle("system", first); err != nil {
		t.Fatal(err)
	}
	if err := mux.Handle("system", second); err != nil {
		t.Fatal(err)
	}

	res, err := mux.Synthesize(context.Background(), "system", tts.Request{Text: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Audio) != "second" {
		t.Fatalf("re-register did not replace: got %q", res.Audio)
	}
	if first.calls != 0 {
		t.Fatalf("replaced synthesizer was still called %d times", first.calls)
	}
}

func TestMux_HandleFunc(t *testing.T) {
	mux := tts.NewMux()
	err := mux.HandleFunc("echo", func(_ context.Context, req tts.Request) (*tts.Result, error) {
		return &tts.Result{Audio: []byte(req.Text), MIME: tts.MIMEWAV}, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := mux.Synthesize(context.Background(), "echo", tts.Request{Text: "repeat me"})
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Audio) != "repeat me" {
		t.Fatalf("got %q, want %q", res.Audio, "repeat me")
	}
}

func TestMux_Providers(t *testing.T) {
	mux := tts.NewMux()
	s := &stubSynth{result: &tts.Result{}}
	mux.Handle("system", s)
	mux.Handle("openai", s)
	mux.Handle("piper/**", s)

	got := mux.Providers()
	want := []string{"openai", "piper/**", "system"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Providers() = %v, want %v", got, want)
	}
}

func TestMux_SynthesizerErrorPassthrough(t *testing.T) {
	mux := tts.NewMux()
	mux.Handle("broken", &stubSynth{err: tts.ErrSynthesisFailed})

	_, err := mux.Synthesize(context.Background(), "broken", tts.Request{Text: "x"})
	if !errors.Is(err, tts.ErrSynthesisFailed) {
		t.Fatalf("error = %v, want ErrSynthesisFailed", err)
	}
}
