package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Fake soffice behaviors for tests that exercise the conversion pipeline
// without a real LibreOffice install.
const (
	// SofficeOK parses --outdir, writes <input stem>.pdf there, exits 0
	SofficeOK = `#!/bin/sh
outdir=""
prev=""
for arg in "$@"; do
  if [ "$prev" = "--outdir" ]; then
    outdir="$arg"
  fi
  prev="$arg"
done
input="$arg"
base=$(basename "$input")
stem="${base%.*}"
printf '%%PDF-1.4 fake artifact' > "$outdir/$stem.pdf"
exit 0
`

	// SofficeSilent exits 0 without producing any output file
	SofficeSilent = `#!/bin/sh
exit 0
`

	// SofficeDiskFull writes a diagnostic to stderr and exits 1
	SofficeDiskFull = `#!/bin/sh
echo "disk full" >&2
exit 1
`

	// SofficeHang sleeps far past any test timeout
	SofficeHang = `#!/bin/sh
sleep 300
exit 0
`
)

// WriteFakeSoffice writes a fake converter script into a temp dir and
// returns its path.
func WriteFakeSoffice(t *testing.T, script string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "soffice")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("Failed to write fake soffice: %v", err)
	}
	return path
}
