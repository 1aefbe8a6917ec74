package command

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-relay/core"
)

func TestEmitEventCommand_NilServiceReturnsRichError(t *testing.T) {
	var cmd *EmitEventCommand
	err := cmd.Execute(context.Background(), EmitEventMessage{})
	if err == nil {
		t.Fatalf("expected command dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if rich.TextCode != core.RelayErrorInternal {
		t.Fatalf("expected %q text code, got %q", core.RelayErrorInternal, rich.TextCode)
	}
}

func TestResolveWorkflowCommand_NilServiceReturnsRichError(t *testing.T) {
	var cmd *ResolveWorkflowCommand
	err := cmd.Execute(context.Background(), ResolveWorkflowMessage{})
	if err == nil {
		t.Fatalf("expected command dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}
