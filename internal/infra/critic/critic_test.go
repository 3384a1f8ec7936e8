package critic

import (
	"context"
	"reflect"
	"testing"

	"multimodal-agent/internal/domain/model"
)

const cleanSource = `import matplotlib
matplotlib.use('Agg')
import matplotlib.pyplot as plt

values = [3, 7, 5, 9, 4]
plt.plot(values)
plt.savefig('output/chart.png')
print('plotted', len(values), 'values')
`

func validate(t *testing.T, source string) model.ValidationResult {
	t.Helper()
	res, err := New().Validate(context.Background(), source)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return res
}

func TestCleanSourcePasses(t *testing.T) {
	res := validate(t, cleanSource)
	if !res.Passed {
		t.Fatalf("expected pass, findings: %+v", res.Findings)
	}
}

func TestSecurityFindingsBlock(t *testing.T) {
	cases := map[string]string{
		"os.system":      "import os\nos.system('rm -rf /')\n",
		"subprocess":     "import subprocess\nsubprocess.run(['ls'])\n",
		"eval":           "eval('1+1')\n",
		"exec":           "exec('x = 1')\n",
		"dunder import":  "__import__('os')\n",
		"socket":         "import socket\n",
		"requests":       "import requests\n",
		"pickle loads":   "import pickle\npickle.loads(data)\n",
		"absolute open":  "open('/etc/passwd')\n",
		"parent escape":  "open('../secrets.txt')\n",
		"shutil rmtree":  "import shutil\nshutil.rmtree('x')\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			res := validate(t, src)
			if res.Passed {
				t.Fatalf("expected security failure for %q", src)
			}
			found := false
			for _, f := range res.Findings {
				if f.Tool == model.FindingToolSecurity {
					found = true
				}
			}
			if !found {
				t.Fatalf("no security finding in %+v", res.Findings)
			}
		})
	}
}

func TestNonBlockingLintDoesNotFail(t *testing.T) {
	// Trailing whitespace and a semicolon: advisory only.
	src := "x = 1 \ny = 2; z = 3\nprint(x + y + z)\n"
	res := validate(t, src)
	if !res.Passed {
		t.Fatalf("style-only issues must not fail validation: %+v", res.Findings)
	}
	if len(res.Findings) == 0 {
		t.Fatal("expected advisory findings")
	}
}

func TestBlockingLintFails(t *testing.T) {
	res := validate(t, "from os.path import *\n")
	if res.Passed {
		t.Fatal("wildcard import must fail validation")
	}
}

func TestEmptySourceFails(t *testing.T) {
	res := validate(t, "   \n\n")
	if res.Passed {
		t.Fatal("empty module must fail validation")
	}
}

func TestCommentsAreIgnored(t *testing.T) {
	res := validate(t, "# os.system('x') is forbidden\nprint('ok')\n")
	if !res.Passed {
		t.Fatalf("commented mention should not block: %+v", res.Findings)
	}
}

func TestDeterminism(t *testing.T) {
	src := "import socket\nos.system('x')\nfrom os import *\nx = 1 \n"
	first := validate(t, src)
	for i := 0; i < 5; i++ {
		again := validate(t, src)
		if first.Passed != again.Passed || !reflect.DeepEqual(first.Findings, again.Findings) {
			t.Fatalf("non-deterministic result:\n%+v\nvs\n%+v", first, again)
		}
	}
}

func TestFindingsOrderedByLine(t *testing.T) {
	src := "import socket\nx = 1\neval('y')\n"
	res := validate(t, src)
	if len(res.Findings) < 2 {
		t.Fatalf("expected at least 2 findings, got %+v", res.Findings)
	}
	if res.Findings[0].Location != "1" || res.Findings[len(res.Findings)-1].Location != "3" {
		t.Fatalf("unexpected ordering: %+v", res.Findings)
	}
}
