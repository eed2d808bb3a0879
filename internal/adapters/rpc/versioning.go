package rpc

import "sort"

// api_version is optional on requests; when present it must fall inside
// [minAPIVersion, currentAPIVersion].
const (
	currentAPIVersion = 1
	minAPIVersion     = 1
)

const (
	codeAPIVersionUnsupported = -32080
	codeAPIVersionRetired     = -32081
)

// Built-in methods answer without an escrow service.
const (
	methodHealthCheck = "health_check"
	methodVersion     = "rpc.version"
)

var builtinMethods = []string{methodHealthCheck, methodVersion}

func validateRPCAPIVersion(v *int) *rpcError {
	switch {
	case v == nil:
		return nil
	case *v < minAPIVersion:
		return &rpcError{Code: codeAPIVersionRetired, Message: "rpc api version is no longer supported"}
	case *v > currentAPIVersion:
		return &rpcError{Code: codeAPIVersionUnsupported, Message: "rpc api version is newer than this server"}
	default:
		return nil
	}
}

type versionInfo struct {
	Current      int      `json:"current_version"`
	MinSupported int      `json:"min_supported_version"`
	Methods      []string `json:"methods"`
}

func rpcVersionInfo() versionInfo {
	return versionInfo{
		Current:      currentAPIVersion,
		MinSupported: minAPIVersion,
		Methods:      supportedMethods(),
	}
}

// supportedMethods lists every dispatchable method, sorted.
func supportedMethods() []string {
	out := make([]string, 0, len(escrowMethods)+len(builtinMethods))
	for name := range escrowMethods {
		out = append(out, name)
	}
	out = append(out, builtinMethods...)
	sort.Strings(out)
	return out
}
