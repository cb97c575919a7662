package main

// schemaTLV and schemaMessage mirror the hjson shape carried over from the
// code-generator this tool was adapted from: an array of loosely typed
// objects, distinguished by their "type" field. Only the "Message" and
// nested "TLV" shapes are consulted here; the full generator also handled
// "Service", "Client" and raw "TLV" common-ref entries, which this reduced
// tool has no use for since it only emits descriptive tables, never typed
// per-message codecs.
type schemaTLV struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	Format    string `json:"format"`
	CommonRef string `json:"common-ref"`
}

type schemaMessage struct {
	Type    string      `json:"type"`
	Name    string      `json:"name"`
	Service string      `json:"service"`
	ID      string      `json:"id"`
	Input   []schemaTLV `json:"input"`
	Output  []schemaTLV `json:"output"`
}
