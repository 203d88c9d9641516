package detector

import "sort"

// nms performs Non-Maximum Suppression on detections, highest score first
func nms(dets []Detection, iouThreshold float32) []Detection {
	if len(dets) == 0 {
		return dets
	}

	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Score > dets[j].Score
	})

	suppressed := make([]bool, len(dets))
	result := make([]Detection, 0, len(dets))
	for i := range dets {
		if suppressed[i] {
			continue
		}
		result = append(result, dets[i])
		for j := i + 1; j < len(dets); j++ {
			if !suppressed[j] && iou(dets[i].BoundingBox, dets[j].BoundingBox) > iouThreshold {
				suppressed[j] = true
			}
		}
	}

	return result
}

// iou calculates Intersection over Union of two bounding boxes
func iou(a, b BoundingBox) float32 {
	x1 := max(a.X1, b.X1)
	y1 := max(a.Y1, b.Y1)
	x2 := min(a.X2, b.X2)
	y2 := min(a.Y2, b.Y2)

	if x1 >= x2 || y1 >= y2 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}

	return intersection / union
}
