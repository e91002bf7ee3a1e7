package gateway

import (
	"github.com/google/uuid"
	"github.com/tidwall/sjson"
)

// buildEnvelope wraps a translated request body (contents/generationConfig/
// tools/...) in the outer shape the Upstream streaming endpoint expects:
// {project, requestId, request:{...,sessionId}, model, userAgent}.
func buildEnvelope(translatedRequest []byte, project, sessionID, model, userAgent string) []byte {
	request, _ := sjson.SetRawBytes(translatedRequest, "sessionId", []byte(`"`+sessionID+`"`))

	out := []byte(`{}`)
	out, _ = sjson.SetBytes(out, "project", project)
	out, _ = sjson.SetBytes(out, "requestId", "agent-"+uuid.New().String())
	out, _ = sjson.SetRawBytes(out, "request", request)
	out, _ = sjson.SetBytes(out, "model", model)
	out, _ = sjson.SetBytes(out, "userAgent", userAgent)
	return out
}
