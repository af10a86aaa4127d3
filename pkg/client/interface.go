package client

import (
	"context"

	"github.com/menta2k/image-annotator/pkg/types"
)

// VisionClient is a vision model backend able to propose boxes for an image.
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	SuggestObjects(ctx context.Context, model, prompt, imgB64 string) (*types.SuggestionResult, error)
}
