package vocab

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// ImportStats summarizes one CSV import pass.
type ImportStats struct {
	Rows         int `json:"rows"`
	Drugs        int `json:"drugs"`
	Interactions int `json:"interactions"`
	Skipped      int `json:"skipped"`
}

// importRow is one parsed CSV line.
type importRow struct {
	drugA, drugB string
	severity     Severity
	description  string
	mechanism    *string
	management   *string
	drugbankA    *string
	drugbankB    *string
	aliasesA     []string
	aliasesB     []string
}

// readImportRows parses an interaction CSV. Expected header columns:
// drug_a, drug_b, severity, description, mechanism, clinical_management,
// drugbank_id_a, drugbank_id_b, drug_a_aliases, drug_b_aliases. Only
// drug_a and drug_b are required; rows missing either are counted as
// skipped, not fatal.
func readImportRows(r io.Reader) ([]importRow, int, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("reading csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := col["drug_a"]; !ok {
		return nil, 0, fmt.Errorf("csv missing required column drug_a")
	}
	if _, ok := col["drug_b"]; !ok {
		return nil, 0, fmt.Errorf("csv missing required column drug_b")
	}

	field := func(record []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	optField := func(record []string, name string) *string {
		v := field(record, name)
		if v == "" {
			return nil
		}
		return &v
	}

	var rows []importRow
	skipped := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		a := NormalizeName(field(record, "drug_a"))
		b := NormalizeName(field(record, "drug_b"))
		if a == "" || b == "" || a == b {
			skipped++
			continue
		}

		rows = append(rows, importRow{
			drugA:       a,
			drugB:       b,
			severity:    ParseSeverity(field(record, "severity")),
			description: field(record, "description"),
			mechanism:   optField(record, "mechanism"),
			management:  optField(record, "clinical_management"),
			drugbankA:   optField(record, "drugbank_id_a"),
			drugbankB:   optField(record, "drugbank_id_b"),
			aliasesA:    parseAliases(field(record, "drug_a_aliases")),
			aliasesB:    parseAliases(field(record, "drug_b_aliases")),
		})
	}
	return rows, skipped, nil
}

// parseAliases accepts either a JSON string array or a ";"-separated list.
func parseAliases(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		var arr []string
		if err := json.Unmarshal([]byte(raw), &arr); err == nil {
			return arr
		}
	}
	var out []string
	for _, part := range strings.Split(raw, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
