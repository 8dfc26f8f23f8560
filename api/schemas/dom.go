package schemas

// DOMNode is one visible element harvested from the live DOM during a
// snapshot pass. The browser driver tags each emitted node with a
// short-lived marker attribute so it can be clicked natively later in the
// same pass; Marker carries that attribute value.
type DOMNode struct {
	Tag       string      `json:"tag"`
	Text      string      `json:"text"`
	ClassName string      `json:"className,omitempty"`
	AriaLabel string      `json:"ariaLabel,omitempty"`
	TestID    string      `json:"testId,omitempty"`
	Box       BoundingBox `json:"box"`
	Marker    string      `json:"marker"`
}
