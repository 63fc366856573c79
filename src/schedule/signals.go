package schedule

// ThermalLevel is the host's thermal severity on an ordered scale.
type ThermalLevel int

const (
	ThermalNominal ThermalLevel = iota
	ThermalFair
	ThermalSerious
	ThermalCritical
)

func (l ThermalLevel) String() string {
	switch l {
	case ThermalNominal:
		return "nominal"
	case ThermalFair:
		return "fair"
	case ThermalSerious:
		return "serious"
	case ThermalCritical:
		return "critical"
	}
	return "unknown"
}

// Deferring reports whether new batch work should wait at this level.
// Only the two highest severities defer admission.
func (l ThermalLevel) Deferring() bool { return l >= ThermalSerious }

// ThermalSource is the injectable host thermal signal. Implementations must
// be safe for concurrent use; the scheduler polls it around admission.
type ThermalSource interface {
	Level() ThermalLevel
}

// StaticThermal is a fixed-level source, the default when the host wires no
// real signal.
type StaticThermal ThermalLevel

func (s StaticThermal) Level() ThermalLevel { return ThermalLevel(s) }
