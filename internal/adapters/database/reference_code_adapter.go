package database

import (
	"context"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/infrastructure/clients/postgres"
)

const (
	icd10Table = "medical_icd10_codes"
	cptTable   = "medical_cpt_codes"
)

type icd10Row struct {
	Code        string `db:"icd10_code"`
	Description string `db:"description"`
}

type cptRow struct {
	Code        string `db:"cpt_code"`
	Description string `db:"description"`
	Modality    string `db:"modality"`
	BodyPart    string `db:"body_part"`
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ReferenceCodeAdapter implements repositories.ReferenceCodeRepository
type ReferenceCodeAdapter struct {
	client *postgres.Client
}

// NewReferenceCodeAdapter creates a new reference code adapter
func NewReferenceCodeAdapter(client *postgres.Client) *ReferenceCodeAdapter {
	return &ReferenceCodeAdapter{client: client}
}

// SearchByKeywords returns up to limit ICD-10 rows followed by up to limit
// CPT rows whose code or description matches any keyword.
func (a *ReferenceCodeAdapter) SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]entities.ReferenceCode, error) {
	if len(keywords) == 0 || limit <= 0 {
		return []entities.ReferenceCode{}, nil
	}

	icdQuery, icdArgs, err := dialect.From(icd10Table).Prepared(true).
		Select("icd10_code", "description").
		Where(keywordFilter("icd10_code", keywords)).
		Order(goqu.C("icd10_code").Asc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, buildError(err)
	}

	var icdRows []icd10Row
	if err := a.client.DB().SelectContext(ctx, &icdRows, icdQuery, icdArgs...); err != nil {
		return nil, persistence("failed to search icd-10 codes", err)
	}

	cptQuery, cptArgs, err := dialect.From(cptTable).Prepared(true).
		Select("cpt_code", "description",
			goqu.COALESCE(goqu.C("modality"), "").As("modality"),
			goqu.COALESCE(goqu.C("body_part"), "").As("body_part")).
		Where(keywordFilter("cpt_code", keywords)).
		Order(goqu.C("cpt_code").Asc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, buildError(err)
	}

	var cptRows []cptRow
	if err := a.client.DB().SelectContext(ctx, &cptRows, cptQuery, cptArgs...); err != nil {
		return nil, persistence("failed to search cpt codes", err)
	}

	codes := make([]entities.ReferenceCode, 0, len(icdRows)+len(cptRows))
	for _, r := range icdRows {
		codes = append(codes, entities.ReferenceCode{
			System:      entities.CodeSystemICD10,
			Code:        r.Code,
			Description: r.Description,
		})
	}
	for _, r := range cptRows {
		codes = append(codes, entities.ReferenceCode{
			System:      entities.CodeSystemCPT,
			Code:        r.Code,
			Description: r.Description,
			Modality:    r.Modality,
			BodyPart:    r.BodyPart,
		})
	}
	return codes, nil
}

// keywordFilter matches a keyword as an exact code or a description substring
func keywordFilter(codeColumn string, keywords []string) exp.ExpressionList {
	ors := make([]exp.Expression, 0, len(keywords)*2)
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		ors = append(ors,
			goqu.C(codeColumn).Eq(strings.ToUpper(k)),
			goqu.C("description").ILike("%"+likeEscaper.Replace(k)+"%"),
		)
	}
	if len(ors) == 0 {
		return goqu.Or(goqu.L("FALSE"))
	}
	return goqu.Or(ors...)
}
