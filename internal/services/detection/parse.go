package detection

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"guardiq-worker-go/internal/models"
)

// ParseDetections decodes the model server reply:
//
//	{"detections": [{"x": .., "y": .., "w": .., "h": .., "class_id": .., "confidence": ..}]}
//
// A missing list means no objects.
func ParseDetections(resp *structpb.Struct) ([]models.Detection, error) {
	field, ok := resp.GetFields()["detections"]
	if !ok {
		return []models.Detection{}, nil
	}
	list := field.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("detections is not a list")
	}

	out := make([]models.Detection, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		obj := v.GetStructValue()
		if obj == nil {
			return nil, fmt.Errorf("detection %d is not an object", i)
		}
		d, err := parseDetection(obj)
		if err != nil {
			return nil, fmt.Errorf("detection %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func parseDetection(obj *structpb.Struct) (models.Detection, error) {
	var nums [6]float64
	for i, key := range []string{"x", "y", "w", "h", "class_id", "confidence"} {
		v, ok := obj.GetFields()[key]
		if !ok {
			return models.Detection{}, fmt.Errorf("missing %q", key)
		}
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return models.Detection{}, fmt.Errorf("%q is not a number", key)
		}
		nums[i] = n.NumberValue
	}

	classID := nums[4]
	if classID != math.Trunc(classID) {
		return models.Detection{}, fmt.Errorf("class_id %v is not an integer", classID)
	}

	return models.Detection{
		BBox:       models.BBox{X: nums[0], Y: nums[1], W: nums[2], H: nums[3]},
		ClassID:    int(classID),
		Confidence: math.Max(0, math.Min(1, nums[5])),
	}, nil
}
