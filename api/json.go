package api

import (
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"github.com/Adibmaros/tasks-management/domain"
)

const maxBodySize = 1 << 20

// sonicSerializer replaces echo's encoding/json serializer.
type sonicSerializer struct{}

func (sonicSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := sonic.ConfigStd.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (sonicSerializer) Deserialize(c echo.Context, i interface{}) error {
	if err := sonic.ConfigStd.NewDecoder(c.Request().Body).Decode(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body").SetInternal(err)
	}
	return nil
}

// decodeBody reads at most maxBodySize bytes of JSON into v.
func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	if err := dec.Decode(v); err != nil {
		metricsFrom(c).SetErrorStage("decode_body")
		return domain.Validationf("invalid body")
	}
	return nil
}

func sonicMarshal(v any) ([]byte, error) {
	return sonic.ConfigStd.Marshal(v)
}

// writeJSON encodes v with sonic and records the encode time.
func writeJSON(c echo.Context, status int, v any) error {
	start := time.Now()
	data, err := sonicMarshal(v)
	if err != nil {
		metricsFrom(c).SetErrorStage("encode_response")
		return err
	}
	err = c.JSONBlob(status, data)
	metricsFrom(c).ObserveEncode(time.Since(start))
	return err
}
