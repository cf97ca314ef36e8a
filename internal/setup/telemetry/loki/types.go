package loki

// pushRequest is the JSON payload of the Loki push API.
type pushRequest struct {
	Streams []stream `json:"streams"`
}

// stream is one label set with its log lines.
type stream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

// line is a single encoded log line waiting to be shipped.
type line struct {
	unixNano int64
	text     string
}
