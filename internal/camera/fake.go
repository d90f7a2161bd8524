package camera

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Command kinds recognised by FakeRunner.
const (
	KindCapture = "capture"
	KindDetect  = "detect"
	KindReset   = "reset"
	KindOther   = "other"
)

// FakeResponse is a scripted result for one FakeRunner call.
type FakeResponse struct {
	Output Output
	Err    error
	// Block waits for the context to end and returns its error.
	Block bool
	// Files are created in the work dir before returning.
	Files []string
}

// FakeRunner replays scripted responses per command kind. The last response
// of a kind repeats once the script is exhausted; an unscripted kind
// succeeds with empty output.
type FakeRunner struct {
	mu      sync.Mutex
	scripts map[string][]FakeResponse
	calls   []FakeCall
}

// FakeCall records one invocation.
type FakeCall struct {
	Kind string
	Dir  string
	Args []string
}

// NewFakeRunner creates an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{scripts: make(map[string][]FakeResponse)}
}

// Script appends responses for a command kind.
func (f *FakeRunner) Script(kind string, responses ...FakeResponse) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[kind] = append(f.scripts[kind], responses...)
	return f
}

// Run implements Runner.
func (f *FakeRunner) Run(ctx context.Context, dir string, args ...string) (Output, error) {
	kind := commandKind(args)

	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{Kind: kind, Dir: dir, Args: append([]string(nil), args...)})
	var resp FakeResponse
	if script := f.scripts[kind]; len(script) > 0 {
		resp = script[0]
		if len(script) > 1 {
			f.scripts[kind] = script[1:]
		}
	}
	f.mu.Unlock()

	if resp.Block {
		<-ctx.Done()
		return Output{ExitCode: -1}, ctx.Err()
	}
	for _, name := range resp.Files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("image"), 0o644); err != nil {
			return Output{}, err
		}
	}
	return resp.Output, resp.Err
}

// Calls returns all recorded invocations.
func (f *FakeRunner) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall(nil), f.calls...)
}

// Count returns how many calls of kind were made.
func (f *FakeRunner) Count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

func commandKind(args []string) string {
	for _, a := range args {
		switch {
		case a == "--capture-image-and-download":
			return KindCapture
		case a == "--auto-detect":
			return KindDetect
		case a == "--reset":
			return KindReset
		case strings.HasPrefix(a, "--capture"):
			return KindCapture
		}
	}
	return KindOther
}

// DetectedOutput is auto-detect output listing model.
func DetectedOutput(model string) Output {
	return Output{Stdout: "Model                          Port\n----------------------------------------------------------\n" + model + "                 usb:001,004\n"}
}
