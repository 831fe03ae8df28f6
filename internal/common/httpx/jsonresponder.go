// Package httpx provides the response helpers shared by the tenancy HTTP middleware:
// JSON responses, error responses derived from application errors, and a response writer
// that remembers whether anything was written.
package httpx

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
)

// SendJsonRsp marshals msg and sends it with the given status code. Pre-marshalled
// JSON passed as a string or []byte is sent as is.
func SendJsonRsp(ctx context.Context, w http.ResponseWriter, statusCode int, msg any) {
	var msgJson []byte
	switch m := msg.(type) {
	case string:
		msgJson = []byte(m)
	case []byte:
		msgJson = m
	default:
		var err error
		msgJson, err = json.Marshal(msg)
		if err != nil {
			log.Ctx(ctx).Err(err).Msg("unable to marshal json")
			ErrApplicationError().Send(w)
			return
		}
	}
	if !json.Valid(msgJson) {
		log.Ctx(ctx).Error().Msg("response is not valid json")
		ErrApplicationError().Send(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(msgJson)
}
