package critic

import (
	"regexp"

	"multimodal-agent/internal/domain/model"
)

// rule is one line-scoped check. Rules run in declaration order on each line,
// which (with line order) fixes the ordering of findings.
type rule struct {
	pattern  *regexp.Regexp
	severity model.FindingSeverity
	message  string
}

// securityRules fail validation outright, regardless of severity.
// The scan is textual and fail-closed: a dangerous token inside a string
// literal still counts, which is acceptable for generated code that has no
// business mentioning these constructs at all.
var securityRules = []rule{
	{regexp.MustCompile(`\bos\.system\s*\(`), model.SeverityError,
		"arbitrary shell execution via os.system"},
	{regexp.MustCompile(`\bos\.popen\s*\(`), model.SeverityError,
		"arbitrary shell execution via os.popen"},
	{regexp.MustCompile(`\bsubprocess\b`), model.SeverityError,
		"subprocess module grants arbitrary process execution"},
	{regexp.MustCompile(`\beval\s*\(`), model.SeverityError,
		"dynamic code evaluation via eval"},
	{regexp.MustCompile(`\bexec\s*\(`), model.SeverityError,
		"dynamic code evaluation via exec"},
	{regexp.MustCompile(`\bcompile\s*\(`), model.SeverityWarning,
		"dynamic code compilation"},
	{regexp.MustCompile(`__import__\s*\(`), model.SeverityError,
		"dynamic import via __import__"},
	{regexp.MustCompile(`\bimportlib\b`), model.SeverityError,
		"dynamic import via importlib"},
	{regexp.MustCompile(`\bsocket\b`), model.SeverityError,
		"raw network access via socket"},
	{regexp.MustCompile(`\burllib\b`), model.SeverityError,
		"network access via urllib"},
	{regexp.MustCompile(`\brequests\b`), model.SeverityError,
		"network access via requests"},
	{regexp.MustCompile(`\bhttp\.client\b`), model.SeverityError,
		"network access via http.client"},
	{regexp.MustCompile(`\bftplib\b|\btelnetlib\b|\bsmtplib\b`), model.SeverityError,
		"network protocol library"},
	{regexp.MustCompile(`\bpickle\.loads?\s*\(`), model.SeverityError,
		"deserialization of untrusted data via pickle"},
	{regexp.MustCompile(`\bctypes\b`), model.SeverityError,
		"native code access via ctypes"},
	{regexp.MustCompile(`\bshutil\.rmtree\s*\(`), model.SeverityError,
		"recursive filesystem deletion"},
	{regexp.MustCompile(`\bos\.(remove|unlink|rmdir|fork|kill|setuid|chmod)\s*\(`), model.SeverityError,
		"destructive or privileged os call"},
	{regexp.MustCompile(`open\s*\(\s*["']\s*/`), model.SeverityError,
		"absolute-path file access outside the work directory"},
	{regexp.MustCompile(`open\s*\(\s*["'][^"']*\.\.`), model.SeverityError,
		"parent-directory file access"},
	{regexp.MustCompile(`\bgetattr\s*\(\s*__builtins__`), model.SeverityError,
		"builtins introspection"},
}

// lintRules are style/correctness checks. Only error severity blocks;
// warnings and infos are advisory.
var lintRules = []rule{
	{regexp.MustCompile(`^from\s+\S+\s+import\s+\*`), model.SeverityError,
		"wildcard import"},
	{regexp.MustCompile(`^\s*except\s*:`), model.SeverityWarning,
		"bare except swallows all exceptions"},
	{regexp.MustCompile(`\bglobal\s+\w`), model.SeverityWarning,
		"global statement"},
	{regexp.MustCompile(`;\s*\S`), model.SeverityInfo,
		"multiple statements on one line"},
	{regexp.MustCompile(`\s$`), model.SeverityInfo,
		"trailing whitespace"},
	{regexp.MustCompile(`^\t`), model.SeverityWarning,
		"tab indentation"},
}

const maxLineLength = 120
