package extract

import "testing"

func TestMagicHasForeignCode(t *testing.T) {
	x := NewMagicExtractor()

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"plain code", "x = 1\ny = 2", false},
		{"cell magic", "%%bash\necho hi", true},
		{"line magic", "x = 1\n%timeit f()", true},
		{"shell escape", "!ls -la", true},
		{"modulo is not a magic", "x = a % b", false},
		{"percent string literal", "s = '100%'", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := x.HasForeignCode(tt.text); got != tt.want {
				t.Errorf("HasForeignCode(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestMagicLineExtractions(t *testing.T) {
	x := NewMagicExtractor()

	got, err := x.ExtractForeignCode("%load_ext autoreload\nx = 1\n!make build")
	if err != nil {
		t.Fatalf("ExtractForeignCode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("extractions = %d, want 2", len(got))
	}

	if !got[0].MaskOnly() || got[0].StartLine != 0 || got[0].EndLine != 1 {
		t.Errorf("line magic extraction = %+v, want mask of line 0", got[0])
	}
	shell := got[1]
	if shell.Language != "shellscript" || shell.Standalone {
		t.Errorf("shell extraction = %+v, want merged shellscript", shell)
	}
	if shell.StartLine != 2 || shell.Text != "make build" {
		t.Errorf("shell extraction = %+v, want line 2 without the bang", shell)
	}
}

func TestMagicCellExtraction(t *testing.T) {
	x := NewMagicExtractor()

	t.Run("known language", func(t *testing.T) {
		got, err := x.ExtractForeignCode("%%html\n<p>hi</p>\n<p>bye</p>")
		if err != nil {
			t.Fatalf("ExtractForeignCode: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("extractions = %d, want mask plus body", len(got))
		}
		if !got[0].MaskOnly() || got[0].EndLine != 1 {
			t.Errorf("magic line = %+v, want mask of line 0", got[0])
		}
		body := got[1]
		if body.Language != "html" || !body.Standalone {
			t.Errorf("body = %+v, want standalone html", body)
		}
		if body.StartLine != 1 || body.EndLine != 3 || body.Text != "<p>hi</p>\n<p>bye</p>" {
			t.Errorf("body = %+v, want lines 1-2", body)
		}
	})

	t.Run("unknown magic masks the whole region", func(t *testing.T) {
		got, err := x.ExtractForeignCode("%%capture out\nx = slow()")
		if err != nil {
			t.Fatalf("ExtractForeignCode: %v", err)
		}
		if len(got) != 1 || !got[0].MaskOnly() || got[0].EndLine != 2 {
			t.Errorf("extractions = %+v, want one mask covering both lines", got)
		}
	})

	t.Run("magic with empty body", func(t *testing.T) {
		got, err := x.ExtractForeignCode("%%bash")
		if err != nil {
			t.Fatalf("ExtractForeignCode: %v", err)
		}
		if len(got) != 1 || !got[0].MaskOnly() {
			t.Errorf("extractions = %+v, want only the mask", got)
		}
	})
}
