package pipeline

import (
	"github.com/JoeYatesss/invoice/constants"
	"github.com/JoeYatesss/invoice/internal/entity"
	"github.com/JoeYatesss/invoice/internal/extract"
)

// MergeCandidates folds strategy candidates into one record field by
// field: the highest-confidence proposal wins, and on an exact tie the
// rule-based value is taken so repeated runs pick the same winner.
// Returns the merged record, the winning confidence per field, and the
// per-field provenance (which method supplied the value).
func MergeCandidates(cands []extract.Candidate) (entity.InvoiceRecord, map[string]float64, map[string]string) {
	var rec entity.InvoiceRecord
	confs := make(map[string]float64)
	prov := make(map[string]string)

	for _, field := range entity.Fields {
		winner := -1
		for i := range cands {
			conf, ok := cands[i].FieldConfidence[field]
			if !ok {
				continue
			}
			switch {
			case winner < 0 || conf > confs[field]:
				winner = i
				confs[field] = conf
			case conf == confs[field] && cands[i].Method == constants.SourceRules &&
				cands[winner].Method != constants.SourceRules:
				winner = i
			}
		}
		if winner < 0 {
			delete(confs, field)
			continue
		}
		rec.Set(field, cands[winner].Record.Get(field))
		prov[field] = cands[winner].Method
	}
	return rec, confs, prov
}
