package detect

import "fmt"

// scoreOffset is the index of the first class score in a YOLO output row:
// cx, cy, w, h, objectness, then one score per class.
const scoreOffset = 5

// Decode turns raw YOLO output rows into candidates in width x height pixel
// space. A row is kept only if its best class score is strictly greater than
// threshold. Rows too short to carry a class score are skipped.
func Decode(rows [][]float32, width, height int, threshold float32, labels []string) []Detection {
	var out []Detection
	for _, row := range rows {
		if len(row) <= scoreOffset {
			continue
		}
		classID, conf := argmax(row[scoreOffset:])
		if conf <= threshold {
			continue
		}

		cx := int(row[0] * float32(width))
		cy := int(row[1] * float32(height))
		w := int(row[2] * float32(width))
		h := int(row[3] * float32(height))

		out = append(out, Detection{
			Box: Box{
				X: int(float64(cx) - float64(w)/2),
				Y: int(float64(cy) - float64(h)/2),
				W: w,
				H: h,
			},
			Confidence: conf,
			ClassID:    classID,
			Label:      Label(labels, classID),
		})
	}
	return out
}

// Label returns the class name for id, or a placeholder when the names list
// does not cover it.
func Label(labels []string, id int) string {
	if id >= 0 && id < len(labels) {
		return labels[id]
	}
	return fmt.Sprintf("class_%d", id)
}

// argmax returns the index and value of the largest score. Ties keep the
// lowest index.
func argmax(scores []float32) (int, float32) {
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return best, scores[best]
}
