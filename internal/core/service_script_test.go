//go:build unix

package core

import (
	"context"
	"strings"
	"testing"

	"github.com/JonMunkholm/sessionlake/internal/sandbox"
)

func TestRunScript(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, Deps{Sandbox: sandbox.New(sandbox.Options{Interpreter: "sh"})})

	res, err := svc.RunScript(ctx, "u1", "s1", ScriptRequest{Script: "echo hello\necho data > out.csv\n"})
	if err != nil {
		t.Fatalf("RunScript() error = %v", err)
	}
	if !res.Success || strings.TrimSpace(res.Stdout) != "hello" {
		t.Errorf("result = %+v", res)
	}
	files, _ := svc.ListFiles(ctx, "u1", "s1")
	if files.Count != 1 || files.Files[0].Name != "out.csv" {
		t.Errorf("files = %+v", files.Files)
	}

	failed, err := svc.RunScript(ctx, "u1", "s1", ScriptRequest{Script: "exit 4"})
	if err != nil || failed.Success || failed.ExitCode != 4 {
		t.Errorf("failing script = %+v, %v", failed, err)
	}

	timedOut, err := svc.RunScript(ctx, "u1", "s1", ScriptRequest{Script: "sleep 30", TimeoutSeconds: 1})
	if err != nil {
		t.Fatalf("RunScript(timeout) error = %v", err)
	}
	if !timedOut.TimedOut || timedOut.Code != "RES001" {
		t.Errorf("timeout result = %+v", timedOut)
	}

	if _, err := svc.RunScript(ctx, "u1", "s1", ScriptRequest{Script: "  "}); err == nil {
		t.Error("empty script should be rejected")
	}
}
