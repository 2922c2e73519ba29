package cli

import (
	"bytes"
	"flag"
	"io"
	"strings"
	"testing"
)

func TestHelpFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flags := AddHelpVersionFlags(fs, "", "")

	if err := fs.Parse([]string{"-h"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !flags.Help {
		t.Fatalf("expected help flag set")
	}
}

func TestVersionFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flags := AddHelpVersionFlags(fs, "", "")

	if err := fs.Parse([]string{"--version"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !flags.Version {
		t.Fatalf("expected version flag set")
	}
}

func TestFlagWasSet(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.String("listen", "", "")
	fs.String("token", "", "")

	if err := fs.Parse([]string{"--listen", ":0"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !FlagWasSet(fs, "listen") {
		t.Fatalf("expected listen to be reported as set")
	}
	if FlagWasSet(fs, "token") {
		t.Fatalf("expected token to be reported as unset")
	}
}

func TestStringList(t *testing.T) {
	var list StringList
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Var(&list, "origin", "")

	if err := fs.Parse([]string{"--origin", "a.example, b.example", "--origin", "c.example"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if list.String() != "a.example,b.example,c.example" {
		t.Fatalf("unexpected list %q", list.String())
	}
}

func TestWriteOption(t *testing.T) {
	var out bytes.Buffer
	WriteOption(&out, "--config FILE", "Config file")
	if !strings.HasPrefix(out.String(), "  --config FILE") || !strings.HasSuffix(out.String(), "Config file\n") {
		t.Fatalf("unexpected option line %q", out.String())
	}
}
