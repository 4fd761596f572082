package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
)

// parametrizationSource mirrors the in-process "physics" functions used by
// the transformer tests, in the C shapes the dynamic loader binds.
const parametrizationSource = `
float *sum_and_double(float *out, const float *in)
{
	out[0] = 2.0f * in[0];
	out[1] = in[0] + in[1];
	return out;
}

float *jitter(float *out, const float *in, const float *rnd)
{
	out[0] = in[0] + rnd[0];
	out[1] = in[1] + rnd[1];
	return out;
}
`

// ParametrizationSymbols lists the symbols exported by
// BuildParametrizationLibrary.
var ParametrizationSymbols = []string{"sum_and_double", "jitter"}

// BuildParametrizationLibrary compiles a shared library exporting
// sum_and_double(out, in) and jitter(out, in, rnd) and returns its path.
// The test is skipped when no C compiler is available.
func BuildParametrizationLibrary(tb testing.TB) string {
	tb.Helper()

	cc := ""
	for _, name := range []string{os.Getenv("CC"), "cc", "gcc", "clang"} {
		if name == "" {
			continue
		}
		if path, err := exec.LookPath(name); err == nil {
			cc = path
			break
		}
	}
	if cc == "" {
		tb.Skip("no C compiler available")
	}

	dir := tb.TempDir()
	src := filepath.Join(dir, "parametrization.c")
	if err := os.WriteFile(src, []byte(parametrizationSource), 0o644); err != nil {
		tb.Fatalf("write source: %v", err)
	}

	lib := filepath.Join(dir, "libparametrization.so")
	args := []string{"-shared", "-fPIC", "-o", lib, src}
	if runtime.GOOS == "darwin" {
		lib = filepath.Join(dir, "libparametrization.dylib")
		args = []string{"-dynamiclib", "-o", lib, src}
	}
	if out, err := exec.Command(cc, args...).CombinedOutput(); err != nil {
		tb.Fatalf("compile parametrization library: %v\n%s", err, out)
	}
	return lib
}
