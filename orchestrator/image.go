package orchestrator

import (
	"errors"

	"github.com/distribution/reference"

	"github.com/rudder-cd/rudder/domain"
)

// validateImageRef accepts only registry-qualified, tagged (or digested)
// image references and returns the normalized form. A bare name like
// "shop:v1" never names a pushed artifact, so it is rejected before any
// container action.
func validateImageRef(image string) (string, error) {
	if image == "" {
		return "", domain.NewValidationError("deploy config needs an image")
	}

	named, err := reference.ParseNamed(image)
	if err != nil {
		if errors.Is(err, reference.ErrNameNotCanonical) {
			return "", domain.NewValidationError(
				"image %q is not registry-qualified; only pushed images are deployable", image)
		}
		return "", domain.NewValidationError("invalid image reference %q: %s", image, err)
	}

	if _, tagged := named.(reference.Tagged); !tagged {
		if _, digested := named.(reference.Digested); !digested {
			return "", domain.NewValidationError("image %q needs an explicit tag or digest", image)
		}
	}
	return named.String(), nil
}
