package toolcall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrWong99/voicecanvas/internal/artifact"
	"github.com/MrWong99/voicecanvas/internal/observe"
)

// RenderSVGName is the name under which [RenderSVG] is registered.
const RenderSVGName = "render_svg"

// Acknowledgement texts of render_svg.
const (
	renderSVGSuccess = "SVG rendered successfully"
	svgErrorCode     = "svg_rendering_error"
	svgErrorLevel    = "error"
	svgErrorMessage  = "There was an error rendering the SVG"
	svgErrorSummary  = "SVG rendering error"
)

// renderSVGFailure is the Failure returned for every malformed payload.
var renderSVGFailure = Failure{
	Code:    svgErrorCode,
	Level:   svgErrorLevel,
	Message: svgErrorMessage,
	Error:   svgErrorSummary,
}

// RenderSVG returns the render_svg tool writing to state.
//
// The parameters must be a JSON object. A string "svg" member is stored
// verbatim with no sanitisation; an absent, null or empty member stores the
// placeholder. Anything else leaves state unchanged and yields the
// svg_rendering_error Failure.
func RenderSVG(state *artifact.State) Tool {
	return Tool{
		Definition: Definition{
			Name:        RenderSVGName,
			Description: "Render an SVG image on the user's canvas, replacing whatever is shown. Pass the complete SVG document as the svg argument.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"svg": map[string]any{
						"type":        "string",
						"description": "Complete SVG markup, starting with <svg.",
					},
				},
				"required": []string{"svg"},
			},
		},
		Handler: func(ctx context.Context, req Request) Result {
			markup, err := parseSVG(req.Parameters)
			if err != nil {
				observe.Logger(ctx).Warn("toolcall: render_svg rejected parameters",
					"call_id", req.CallID,
					"err", err,
				)
				return Failed(renderSVGFailure)
			}
			state.Set(markup)
			return Succeeded(renderSVGSuccess)
		},
	}
}

// parseSVG extracts the svg member from params. It returns "" when the member
// is absent or null. Parameters that are not an object and an svg that is
// not a string are errors.
func parseSVG(params string) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(params), &fields); err != nil {
		return "", fmt.Errorf("decode parameters: %w", err)
	}
	if fields == nil {
		return "", errors.New("parameters are not a JSON object")
	}
	raw, ok := fields["svg"]
	if !ok {
		return "", nil
	}
	var markup string
	if err := json.Unmarshal(raw, &markup); err != nil {
		return "", fmt.Errorf("decode svg: %w", err)
	}
	return markup, nil
}
