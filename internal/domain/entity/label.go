package entity

// LabelPair joins an image and its YOLO label file by filename stem.
type LabelPair struct {
	Stem      string
	ImagePath string
	LabelPath string
}

func (p LabelPair) Complete() bool {
	return p.ImagePath != "" && p.LabelPath != ""
}

// ReconciliationReport is the result of one directory scan. Mismatches are
// reported here and are never errors.
type ReconciliationReport struct {
	Directory       string
	ImageCount      int
	LabelCount      int
	UnmatchedImages []string
	UnmatchedLabels []string
	AmbiguousStems  []string
	Pairs           []LabelPair
}

// CompletePairs returns the pairs with both files present, in stem order.
func (r *ReconciliationReport) CompletePairs() []LabelPair {
	out := make([]LabelPair, 0, len(r.Pairs))
	for _, p := range r.Pairs {
		if p.Complete() {
			out = append(out, p)
		}
	}
	return out
}

func (r *ReconciliationReport) Balanced() bool {
	return len(r.UnmatchedImages) == 0 && len(r.UnmatchedLabels) == 0 && len(r.AmbiguousStems) == 0
}
