package ocr

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alexandrurinzescu-afk/vaultguard-revolution/pkg/models"
)

func TestParseCapabilities(t *testing.T) {
	tests := []struct {
		name      string
		out       string
		version   string
		whitelist bool
		wantErr   bool
	}{
		{"v5", "tesseract 5.3.4\n leptonica-1.84.1\n", "5.3.4", true, false},
		{"v4.1", "tesseract 4.1.1", "4.1.1", true, false},
		{"v4.0", "tesseract 4.0.0-beta.1", "4.0.0", false, false},
		{"v3", "tesseract 3.05.02", "3.05.02", false, false},
		{"library form", "5.3.0", "5.3.0", true, false},
		{"garbage", "command not found", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps, err := parseCapabilities(tt.out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if caps.Version != tt.version || caps.Whitelist != tt.whitelist {
				t.Errorf("got %+v, want version %s whitelist %v", caps, tt.version, tt.whitelist)
			}
			if caps.Supports(models.ModeWindowsSecurity) != tt.whitelist {
				t.Errorf("Supports(windows_security) = %v", !tt.whitelist)
			}
			if !caps.Supports(models.ModeDefault) {
				t.Error("default mode must always be supported")
			}
		})
	}
}

func TestCLIArgs(t *testing.T) {
	args := strings.Join(cliArgs(recognizeConfigFor(WindowsSecurityOptions())), " ")
	for _, want := range []string{"stdin stdout", "-l ron+eng", "--oem 3", "--psm 6", "tessedit_char_whitelist=ABC"} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}

	args = strings.Join(cliArgs(recognizeConfigFor(DefaultOptions().WithLanguages("eng"))), " ")
	if strings.Contains(args, "whitelist") {
		t.Errorf("default mode args carry a whitelist: %q", args)
	}
	if !strings.Contains(args, "-l eng ") {
		t.Errorf("args %q missing language override", args)
	}
}

func TestCLIEngineProbeMissingBinary(t *testing.T) {
	eng := NewCLIEngine(filepath.Join(t.TempDir(), "no-such-tesseract"), "")
	if _, err := eng.Probe(context.Background()); err == nil {
		t.Error("expected probe to fail for a missing binary")
	}

	eng = NewCLIEngine(t.TempDir(), "")
	if _, err := eng.Probe(context.Background()); err == nil {
		t.Error("expected probe to fail for a directory")
	}
}

func TestOptionsModifiersDoNotAlias(t *testing.T) {
	base := DefaultOptions()
	changed := base.WithLanguages("deu").WithMode(models.ModeWindowsSecurity)

	if base.LanguageTag() != "ron+eng" || !base.Preprocess || base.Mode != models.ModeDefault {
		t.Errorf("base options mutated: %+v", base)
	}
	if changed.LanguageTag() != "deu" || !changed.Preprocess || changed.Mode != models.ModeWindowsSecurity {
		t.Errorf("modifiers not applied: %+v", changed)
	}
}
