package errors

import (
	stderrors "errors"
	"net/http"
	"testing"
)

func TestBadPipeline(t *testing.T) {
	err := BadPipeline("cycle detected")
	if err.Kind != KindBadPipeline {
		t.Errorf("expected BAD_PIPELINE, got %s", err.Kind)
	}
	if err.HTTPStatus != http.StatusUnprocessableEntity {
		t.Errorf("unexpected status %d", err.HTTPStatus)
	}
	if err.Retryable {
		t.Error("BAD_PIPELINE must not be retryable")
	}
}

func TestUpstreamUnavailableRetryable(t *testing.T) {
	cause := stderrors.New("dial tcp: refused")
	err := UpstreamUnavailable("era5-archive", cause)
	if !err.Retryable {
		t.Error("UPSTREAM_UNAVAILABLE must be retryable")
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected cause to unwrap")
	}
}

func TestCancelledWithOrigin(t *testing.T) {
	err := Cancelled("node-a")
	if err.Details["origin_node_id"] != "node-a" {
		t.Errorf("expected origin_node_id detail, got %v", err.Details)
	}
	if err.Kind != KindCancelled {
		t.Errorf("expected CANCELLED, got %s", err.Kind)
	}
}

func TestAsAppError(t *testing.T) {
	inner := NoSuchRequest("deadbeef")
	wrapped := stderrors.Join(stderrors.New("outer"), inner)
	appErr, ok := AsAppError(wrapped)
	if !ok {
		t.Fatal("expected AppError through wrapping")
	}
	if appErr.Kind != KindNoSuchRequest {
		t.Errorf("expected NO_SUCH_REQUEST, got %s", appErr.Kind)
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(stderrors.New("plain")) != KindInternal {
		t.Error("plain errors default to INTERNAL")
	}
	if KindOf(AdapterBadInput("bad date")) != KindAdapterBadInput {
		t.Error("expected ADAPTER_BAD_INPUT")
	}
}

func TestToResponse(t *testing.T) {
	resp := NoSuchRequest("xyz").ToResponse()
	if resp.ErrorKind != KindNoSuchRequest {
		t.Errorf("unexpected kind %s", resp.ErrorKind)
	}
	if resp.Details["request_id"] != "xyz" {
		t.Errorf("unexpected details %v", resp.Details)
	}
}
