// Package bioheader implements the FASTA header parsing rules consumed by
// the canonical sequence store (C3): accession extraction, taxon
// extraction, UniProt metadata tags, and the nucleotide/protein heuristic.
// Grounded on extract_accessions_from_header / extract_taxon_from_header /
// parse_metadata / detect_sequence_type in
// original_source/talaria-sequoia/src/storage/sequence.rs.
package bioheader

import (
	"regexp"
	"strings"
)

// SequenceType classifies a canonical sequence's residue alphabet.
type SequenceType int

const (
	Unknown SequenceType = iota
	DNA
	RNA
	Protein
)

func (t SequenceType) String() string {
	switch t {
	case DNA:
		return "DNA"
	case RNA:
		return "RNA"
	case Protein:
		return "Protein"
	default:
		return "Unknown"
	}
}

// DetectSequenceType classifies sequence by the fraction of nucleotide
// characters it contains: more than 90% of ACGTUN (case-insensitive)
// classifies it as nucleotide (RNA if it contains any U/u, else DNA);
// otherwise it is treated as Protein. An empty sequence is Unknown.
func DetectSequenceType(sequence []byte) SequenceType {
	if len(sequence) == 0 {
		return Unknown
	}
	nucleotideCount := 0
	hasU := false
	for _, c := range sequence {
		switch c {
		case 'A', 'C', 'G', 'T', 'N', 'a', 'c', 'g', 't', 'n':
			nucleotideCount++
		case 'U', 'u':
			nucleotideCount++
			hasU = true
		}
	}
	if float64(nucleotideCount)/float64(len(sequence)) > 0.9 {
		if hasU {
			return RNA
		}
		return DNA
	}
	return Protein
}

// ExtractAccessions applies the order-preserving accession extraction rules
// to a FASTA header line (with or without the leading '>').
func ExtractAccessions(header string) []string {
	header = strings.TrimPrefix(header, ">")
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return nil
	}
	token := fields[0]

	if accs, ok := matchSwissProt(token); ok {
		return accs
	}
	if accs, ok := matchGenBankStyle(token); ok {
		return accs
	}
	if strings.Contains(token, "|") {
		var out []string
		for _, part := range strings.Split(token, "|") {
			if part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	out := []string{token}
	if dot := strings.LastIndexByte(token, '.'); dot > 0 && isVersionSuffix(token[dot+1:]) {
		out = append(out, token[:dot])
	}
	return out
}

var swissProtRe = regexp.MustCompile(`^(?:sp|tr)\|([^|]+)\|([^|]+)$`)

func matchSwissProt(token string) ([]string, bool) {
	m := swissProtRe.FindStringSubmatch(token)
	if m == nil {
		return nil, false
	}
	return []string{m[1], m[2]}, true
}

func matchGenBankStyle(token string) ([]string, bool) {
	if !strings.Contains(token, "|") {
		return nil, false
	}
	parts := strings.Split(token, "|")
	var accessions []string
	var giNumber string
	matched := false
	for i := 0; i+1 < len(parts); i++ {
		switch parts[i] {
		case "ref", "gb", "emb", "dbj":
			matched = true
			acc := parts[i+1]
			if dot := strings.LastIndexByte(acc, '.'); dot > 0 && isVersionSuffix(acc[dot+1:]) {
				acc = acc[:dot]
			}
			accessions = append(accessions, acc)
		case "gi":
			giNumber = parts[i+1]
		}
	}
	if !matched {
		return nil, false
	}
	if giNumber != "" {
		accessions = append(accessions, giNumber)
	}
	return accessions, true
}

func isVersionSuffix(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

var (
	taxOXRe    = regexp.MustCompile(`OX=(\d+)`)
	taxIDRe    = regexp.MustCompile(`TaxID=(\d+)`)
)

// ExtractTaxon scans a header for an OX=<digits> tag, falling back to
// TaxID=<digits>. It returns ("", false) if neither is present.
func ExtractTaxon(header string) (string, bool) {
	if m := taxOXRe.FindStringSubmatch(header); m != nil {
		return m[1], true
	}
	if m := taxIDRe.FindStringSubmatch(header); m != nil {
		return m[1], true
	}
	return "", false
}

// ExtractDescription returns the header text after the first space,
// trimmed of surrounding whitespace, with any trailing UniProt metadata tags left intact for
// ExtractMetadata to consume separately.
func ExtractDescription(header string) string {
	header = strings.TrimPrefix(header, ">")
	fields := strings.SplitN(header, " ", 2)
	if len(fields) < 2 {
		return ""
	}
	return strings.TrimSpace(fields[1])
}

var metadataTags = []string{"OS=", "GN=", "PE=", "SV="}

// ExtractMetadata pulls the UniProt OS=/GN=/PE=/SV= tags out of a header,
// each value running up to the next recognized tag or end of line.
func ExtractMetadata(header string) map[string]string {
	out := map[string]string{}
	for _, tag := range metadataTags {
		idx := strings.Index(header, tag)
		if idx < 0 {
			continue
		}
		rest := header[idx+len(tag):]
		end := len(rest)
		for _, other := range metadataTags {
			if other == tag {
				continue
			}
			if j := strings.Index(rest, other); j >= 0 && j < end {
				end = j
			}
		}
		key := strings.TrimSuffix(tag, "=")
		out[key] = strings.TrimSpace(rest[:end])
	}
	return out
}
