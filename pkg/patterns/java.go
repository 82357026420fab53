package patterns

// Rule keys of the built-in table.
const (
	KeyWhileLoop     = "while-loop"
	KeyIntArrayLoop  = "int-array-loop"
	KeyGuessBranch   = "guess-branch"
	KeyRangeCollapse = "range-collapse"
	KeyReturnRange   = "return-range"
	KeyReturnAverage = "return-average"
	KeySecretRng     = "secret-rng"
	KeyAttemptLoop   = "attempt-loop"
	KeyMinFromRange  = "min-from-range"
	KeyMaxFromRange  = "max-from-range"
	KeyGuessIndex    = "guess-index"
	KeyIntAverage    = "int-average"
	KeyScannerDecl   = "scanner-decl"
	KeyIntDecl       = "int-decl"
)

func javaRules() []*Rule {
	return []*Rule{
		{
			Key:     KeyWhileLoop,
			Kind:    ContextFree,
			Trigger: regexTrigger(`\bwhile\b`),
			Fragments: []string{
				" (x < 10) {",
				"    System.out.println(x);",
				"    x++;",
				"}",
			},
		},
		{
			// <= runs one past the end of the array.
			Key:     KeyIntArrayLoop,
			Kind:    ContextFree,
			Trigger: regexTrigger(`\bint\[\]\s+[a-zA-Z_][a-zA-Z0-9_]*`),
			Fragments: []string{
				" = {1, 2, 3, 4, 5};",
				"for (int i = 0; i <= numbers.length; i++) {",
				"    System.out.println(numbers[i]);",
				"}",
			},
		},
		{
			// Bounds move the wrong way.
			Key:     KeyGuessBranch,
			Kind:    ContextFree,
			Trigger: regexTrigger(`if\s*\(\s*guess\s*>\s*secret\s*\)`),
			Fragments: []string{
				"{",
				"minV = Math.max(minV, guess + 1);",
				"} else if (guess < secret) {",
				"maxV = Math.min(maxV, guess - 1);",
				"}",
			},
		},
		{
			Key:       KeyRangeCollapse,
			Kind:      ContextFree,
			Trigger:   regexTrigger(`if\s*\(\s*maxV\s*>\s*minV\s*\)`),
			Fragments: []string{" {", "  minV = maxV;", "}"},
		},
		{
			// The trigger itself expects a stray slash before new.
			Key:       KeyReturnRange,
			Kind:      ContextFree,
			Trigger:   regexTrigger(`return\s/new\s+int\[\]\s*;`),
			Fragments: []string{"int[] { minV, maxV };"},
		},
		{
			Key:       KeyReturnAverage,
			Kind:      ContextFree,
			Trigger:   regexTrigger(`return\s+sum\s+/\s+guesses\.length\s*;`),
			Fragments: []string{"(int) sum / guesses.length;"},
		},
		{
			// Negative bound whenever maxV > minV + 2.
			Key:       KeySecretRng,
			Kind:      ContextFree,
			Trigger:   regexTrigger(`\bint\s+secret\s*=\s*rng\b`),
			Fragments: []string{".nextInt(minV - maxV + 2) + minV;"},
		},
		{
			Key:       KeyAttemptLoop,
			Kind:      ContextFree,
			Trigger:   regexTrigger(`\bfor\s*\(\s*int\s+attempt\s*=`),
			Fragments: []string{"1; attempt < 8; attempt++) {"},
		},
		{
			Key:       KeyMinFromRange,
			Kind:      ContextFree,
			Trigger:   regexTrigger(`\bminV\s*=\s*range\b`),
			Fragments: []string{"[0]"},
		},
		{
			// range only has two elements.
			Key:       KeyMaxFromRange,
			Kind:      ContextFree,
			Trigger:   regexTrigger(`\bmaxV\s*=\s*range\b`),
			Fragments: []string{"[2]"},
		},
		{
			Key:       KeyGuessIndex,
			Kind:      ContextFree,
			Trigger:   regexTrigger(`\bif\s*\(\s*guesses\[`),
			Fragments: []string{"guesses.length - 1] != secret){"},
		},
		{
			Key:       KeyIntAverage,
			Kind:      ContextFree,
			Trigger:   regexTrigger(`\bint\s+avg`),
			Fragments: []string{"(int) averageGuess(guesses);"},
		},
		{
			Key:     KeyScannerDecl,
			Kind:    VariableCapturing,
			Trigger: regexTrigger(`\bScanner\s+(\w+)\b`),
			Build: func(Hit) []string {
				return []string{" = new Scanner(System.in);"}
			},
		},
		{
			// Always reads through sc, whatever the scanner was called, and
			// next() returns a String.
			Key:     KeyIntDecl,
			Kind:    VariableCapturing,
			Trigger: regexTrigger(`^\s*int\s+(\w+)\b`),
			Build: func(Hit) []string {
				return []string{"= sc.next();"}
			},
		},
	}
}
