// internal/university/record.go
//
// `university` table row model.
//
// Context
// -------
// The Record struct mirrors one row of the **university** table: identity
// and ownership columns, every registered scalar as a nullable live
// column, and a `<column>_draft` twin for each field the Field Registry
// flags as requiring staging.
//
// Schema reference
//
//	CREATE TABLE university (
//	    id                 BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
//	    slug               VARCHAR(128) NOT NULL UNIQUE,
//	    name               VARCHAR(256) NOT NULL,
//	    short_name         VARCHAR(64)  NOT NULL DEFAULT '',
//	    website            VARCHAR(256) NOT NULL DEFAULT '',
//	    city, state, country VARCHAR(128) NOT NULL DEFAULT '',
//	    owner_id           BIGINT NULL,
//	    claimed_at         TIMESTAMP NULL,
//	    acceptance_rate    DECIMAL(6,4) NULL,  acceptance_rate_draft DECIMAL(6,4) NULL,
//	    ...                                   (one pair per staged field)
//	    updated_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
//	);
//
// Notes
// -----
//   - Nullable scalars are pointers; nil means "never set".
//   - Column list in store.go matches the fields here; update both together.
//   - Live and Draft read columns by name through sqlx's reflectx mapper so
//     the registry, not a switch statement, decides which column is read.
package university

import (
	"reflect"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/reflectx"

	"github.com/yanizio/uniprofile/internal/registry"
)

// Record mirrors one row in the `university` table.
type Record struct {
	ID        uint64     `db:"id"`
	Slug      string     `db:"slug"`
	Name      string     `db:"name"`
	ShortName string     `db:"short_name"`
	Website   string     `db:"website"`
	City      string     `db:"city"`
	State     string     `db:"state"`
	Country   string     `db:"country"`
	OwnerID   *int64     `db:"owner_id"`
	ClaimedAt *time.Time `db:"claimed_at"`
	UpdatedAt time.Time  `db:"updated_at"`

	AcceptanceRate       *float64 `db:"acceptance_rate"`
	AcceptanceRateDraft  *float64 `db:"acceptance_rate_draft"`
	AvgSatScore          *int64   `db:"avg_sat_score"`
	AvgSatScoreDraft     *int64   `db:"avg_sat_score_draft"`
	AvgActScore          *int64   `db:"avg_act_score"`
	AvgActScoreDraft     *int64   `db:"avg_act_score_draft"`
	GPA25                *float64 `db:"gpa_25"`
	GPA75                *float64 `db:"gpa_75"`
	SatPercentile25      *int64   `db:"sat_percentile_25"`
	SatPercentile75      *int64   `db:"sat_percentile_75"`

	TuitionInState            *int64 `db:"tuition_in_state"`
	TuitionInStateDraft       *int64 `db:"tuition_in_state_draft"`
	TuitionOutState           *int64 `db:"tuition_out_state"`
	TuitionOutStateDraft      *int64 `db:"tuition_out_state_draft"`
	TuitionInternational      *int64 `db:"tuition_international"`
	TuitionInternationalDraft *int64 `db:"tuition_international_draft"`
	RoomAndBoard              *int64 `db:"room_and_board"`
	CostOfLiving              *int64 `db:"cost_of_living"`
	CostOfLivingDraft         *int64 `db:"cost_of_living_draft"`

	Latitude       *float64 `db:"latitude"`
	Longitude      *float64 `db:"longitude"`
	ClimateZone    *string  `db:"climate_zone"`
	NearestAirport *string  `db:"nearest_airport"`
	Region         *string  `db:"region"`

	GraduationRate         *float64 `db:"graduation_rate"`
	GraduationRateDraft    *float64 `db:"graduation_rate_draft"`
	RetentionRate          *float64 `db:"retention_rate"`
	EmploymentRate         *float64 `db:"employment_rate"`
	EmploymentRateDraft    *float64 `db:"employment_rate_draft"`
	AvgStartingSalary      *int64   `db:"avg_starting_salary"`
	AvgStartingSalaryDraft *int64   `db:"avg_starting_salary_draft"`
	ROI                    *float64 `db:"roi"`

	ResearchExpenditure *int64 `db:"research_expenditure"`
	ResearchRank        *int64 `db:"research_rank"`
}

var mapper = reflectx.NewMapperFunc("db", strings.ToLower)

// Column returns the value stored in the named column.  The bool is false
// when the column is unknown or NULL.
func (r *Record) Column(col string, kind registry.Kind) (registry.Value, bool) {
	if col == "" {
		return registry.Value{}, false
	}
	v := reflect.ValueOf(r).Elem()
	fi, ok := mapper.TypeMap(v.Type()).Names[col]
	if !ok {
		return registry.Value{}, false
	}
	fv := reflectx.FieldByIndexesReadOnly(v, fi.Index)
	if fv.Kind() == reflect.Ptr {
		if fv.IsNil() {
			return registry.Value{}, false
		}
		fv = fv.Elem()
	}

	switch fv.Kind() {
	case reflect.Float32, reflect.Float64:
		if kind == registry.KindInt {
			return registry.Int(int64(fv.Float())), true
		}
		return registry.Float(fv.Float()), true
	case reflect.Int, reflect.Int32, reflect.Int64:
		if kind == registry.KindFloat {
			return registry.Float(float64(fv.Int())), true
		}
		return registry.Int(fv.Int()), true
	case reflect.String:
		return registry.String(fv.String()), true
	default:
		return registry.Value{}, false
	}
}

// Live returns the live value of the field described by fs.
func (r *Record) Live(fs registry.FieldSpec) (registry.Value, bool) {
	return r.Column(fs.Column, fs.Kind)
}

// Draft returns the pending draft value of a staged field.
func (r *Record) Draft(fs registry.FieldSpec) (registry.Value, bool) {
	return r.Column(fs.DraftColumn, fs.Kind)
}

// Snapshot collects every non-NULL live scalar registered in reg.
func (r *Record) Snapshot(reg *registry.Registry) registry.Values {
	out := registry.Values{}
	for _, f := range reg.Fields() {
		fs, _ := reg.Spec(f)
		if v, ok := r.Live(fs); ok {
			out[f] = v
		}
	}
	return out
}

// Claimed reports whether an owner has claimed the profile.
func (r *Record) Claimed() bool { return r.OwnerID != nil && r.ClaimedAt != nil }
