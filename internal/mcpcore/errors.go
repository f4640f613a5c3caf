package mcpcore

import "github.com/wheattoast11/deepresearch-mcp/internal/apierr"

// JSON-RPC 2.0 canonical error codes, plus this server's domain-specific
// codes from §4.7/§6.
const (
	RPCParseError      = -32700
	RPCInvalidRequest  = -32600
	RPCMethodNotFound  = -32601
	RPCInvalidParams   = -32602
	RPCInternalError   = -32603
	RPCPreInitialization = -32002
	RPCInsufficientScope = -32010
	RPCToolNotFound      = -32020
)

// rpcCodeForErr maps a Go error (possibly an *apierr.Error) to a JSON-RPC
// error code. An explicit "rpc_code" detail (set by callers needing a
// domain-specific code like RPCToolNotFound that the taxonomy table
// doesn't cover 1:1) takes precedence over apierr's own table.
func rpcCodeForErr(err error) int {
	var aerr *apierr.Error
	if asAPIErr(err, &aerr) && aerr.Detail != nil {
		if code, ok := aerr.Detail["rpc_code"].(int); ok {
			return code
		}
	}
	return apierr.JSONRPCCode(apierr.CodeOf(err))
}

// errorData renders an *apierr.Error's detail map (if any) as the JSON-RPC
// error object's `data` field.
func errorData(err error) map[string]any {
	var aerr *apierr.Error
	if ok := asAPIErr(err, &aerr); ok && aerr.Detail != nil {
		return aerr.Detail
	}
	return nil
}

func asAPIErr(err error, target **apierr.Error) bool {
	for err != nil {
		if e, ok := err.(*apierr.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
