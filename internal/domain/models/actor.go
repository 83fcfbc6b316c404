package models

// Grade is a clinical qualification level in the organization's ordered hierarchy.
type Grade string

const (
	GradeStudent             Grade = "Student"
	GradeECA                 Grade = "Emergency Care Assistant"
	GradeTechnician          Grade = "Ambulance Technician"
	GradeParamedic           Grade = "Paramedic"
	GradeSpecialistParamedic Grade = "Specialist Paramedic"
	GradeConsultantParamedic Grade = "Consultant Paramedic"
)

// gradeRank orders grades from least to most qualified. Unknown grades rank
// below every known grade so an unrecognized record never skips a safeguard.
var gradeRank = map[Grade]int{
	GradeStudent:             1,
	GradeECA:                 2,
	GradeTechnician:          3,
	GradeParamedic:           4,
	GradeSpecialistParamedic: 5,
	GradeConsultantParamedic: 6,
}

// Rank returns the grade's position in the hierarchy, 0 for unknown grades.
func (g Grade) Rank() int {
	return gradeRank[g]
}

// AtLeast reports whether g is equal to or above the reference grade.
func (g Grade) AtLeast(reference Grade) bool {
	return g.Rank() >= reference.Rank()
}

// Actor identifies a staff member acting on the register. The identity and
// credential records themselves live in the external staff directory.
type Actor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Grade Grade  `json:"grade"`
}
