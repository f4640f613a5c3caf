package mcpcore

import (
	"testing"

	"github.com/wheattoast11/deepresearch-mcp/internal/apierr"
)

func TestRpcCodeForErr_ExplicitOverrideWins(t *testing.T) {
	err := apierr.New(apierr.CodeNotFound, "tool not found").WithDetail("rpc_code", RPCToolNotFound)
	if got := rpcCodeForErr(err); got != RPCToolNotFound {
		t.Errorf("rpcCodeForErr() = %d, want %d", got, RPCToolNotFound)
	}
}

func TestRpcCodeForErr_FallsBackToTaxonomyTable(t *testing.T) {
	err := apierr.New(apierr.CodeInvalidParams, "bad params")
	if got := rpcCodeForErr(err); got != RPCInvalidParams {
		t.Errorf("rpcCodeForErr() = %d, want %d", got, RPCInvalidParams)
	}
}

func TestErrorData_ExtractsDetailMap(t *testing.T) {
	err := apierr.New(apierr.CodeInvalidParams, "bad params").WithDetail("field", "query")
	data := errorData(err)
	if data["field"] != "query" {
		t.Errorf("errorData() = %+v, want field=query", data)
	}
}

func TestErrorData_NilForPlainError(t *testing.T) {
	if data := errorData(errBoom); data != nil {
		t.Errorf("errorData() = %+v, want nil", data)
	}
}
