package sqlite

// Names of the functions SQLite lacks that generated SQL calls anyway. The
// executing connection must register them; internal/store does.
const (
	FuncAdd      = "ef_add"      // ef_add(a, b): decimal a + b
	FuncDivide   = "ef_divide"   // ef_divide(a, b): decimal a / b
	FuncMultiply = "ef_multiply" // ef_multiply(a, b): decimal a * b
	FuncMod      = "ef_mod"      // ef_mod(a, b): decimal a % b
	FuncNegate   = "ef_negate"   // ef_negate(a): decimal -a
	FuncCompare  = "ef_compare"  // ef_compare(a, b): -1, 0 or 1
	FuncMax      = "ef_max"      // aggregate decimal max
	FuncMin      = "ef_min"      // aggregate decimal min
	FuncDays     = "ef_days"     // ef_days(timespan): fractional days
	FuncTimeSpan = "ef_timespan" // ef_timespan(days): timespan text
	FuncRegexp   = "regexp"      // regexp(pattern, input), backs the REGEXP operator
	FuncUnhex    = "unhex"       // unhex(text): built in since 3.41, registered for older engines
)

// EmulatedScalars lists the scalar functions generated SQL may call that
// are not built into SQLite.
var EmulatedScalars = []string{
	FuncAdd, FuncDivide, FuncMultiply, FuncMod, FuncNegate, FuncCompare,
	FuncDays, FuncTimeSpan, FuncRegexp,
}

// EmulatedAggregates lists the aggregate functions generated SQL may call
// that are not built into SQLite.
var EmulatedAggregates = []string{FuncMax, FuncMin}
