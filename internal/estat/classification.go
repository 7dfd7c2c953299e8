package estat

// Classification maps one coded axis to its human labels.
type Classification struct {
	// ID is the axis identifier, e.g. "cat01" for the "@cat01" column.
	ID string
	// Name is the human axis name, e.g. "品目分類（2020年改定）".
	Name string
	// Labels maps observation codes to human labels.
	Labels map[string]string
}

// ClassificationSet is the classification metadata of one payload, built
// once per raw payload and immutable after construction.
type ClassificationSet struct {
	axes []Classification
}

func newClassificationSet(objs classObjList) ClassificationSet {
	axes := make([]Classification, 0, len(objs))
	for _, obj := range objs {
		labels := make(map[string]string, len(obj.Class))
		for _, entry := range obj.Class {
			if entry.Code == "" {
				continue
			}
			labels[entry.Code] = entry.Name
		}
		axes = append(axes, Classification{
			ID:     obj.ID,
			Name:   obj.Name,
			Labels: labels,
		})
	}
	return ClassificationSet{axes: axes}
}

// NewClassificationSet builds a set from already-decoded axes. Used by
// consumers that assemble payloads outside the wire decoder, and by
// tests.
func NewClassificationSet(axes []Classification) ClassificationSet {
	return ClassificationSet{axes: axes}
}

// Axes returns the classifications in payload order.
func (s ClassificationSet) Axes() []Classification {
	return s.axes
}

// Label resolves a code on the given axis. The second return value is
// false when the axis or code is unknown.
func (s ClassificationSet) Label(axisID, code string) (string, bool) {
	for _, axis := range s.axes {
		if axis.ID == axisID {
			label, ok := axis.Labels[code]
			return label, ok
		}
	}
	return "", false
}

// Len returns the number of classified axes.
func (s ClassificationSet) Len() int {
	return len(s.axes)
}
