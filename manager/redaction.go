package manager

import "strings"

// MaskedSecretValue replaces api keys in user-facing output.
const MaskedSecretValue = "**********"

// RedactRecord clones a record and masks its api key.
func RedactRecord(rec ServerRecord) ServerRecord {
	out := rec.Clone()
	if strings.TrimSpace(out.APIKey) != "" {
		out.APIKey = MaskedSecretValue
	}
	return out
}

// RedactRecords clones all records and masks their api keys.
func RedactRecords(recs []ServerRecord) []ServerRecord {
	out := make([]ServerRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, RedactRecord(rec))
	}
	return out
}
