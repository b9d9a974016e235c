package ai

const ExtractionPrompt = `
# Task Context
You are an assistant that reads research papers and extracts the scientific artifacts they contribute or rely on, for a knowledge graph of research.

# Background Data
Title: %s

Abstract:
%s

Full text (may be truncated or empty):
%s

# Detailed Task Description & Rules
- concepts: ideas, models or architectures the paper introduces or substantially builds on.
- methods: techniques or procedures the paper applies (training schemes, optimisers, evaluation protocols).
- datasets: named datasets or benchmarks the paper evaluates on. Use the exact name as written.
- metrics: reported evaluation results, each with the metric name, value and dataset when stated.
- Every concept and method needs a short name, a one or two sentence description and a category from: %s.
- confidence is your certainty in [0,1] that the item is real and correctly described.
- Do not invent items that are not supported by the text. Empty lists are fine.

# Immediate Task Description or Request
Return the extracted items as a JSON object.

# Output Formatting
{
  "concepts": [{"name": "...", "description": "...", "category": "...", "confidence": 0.0}],
  "methods": [{"name": "...", "description": "...", "category": "...", "confidence": 0.0}],
  "datasets": [{"name": "...", "description": "..."}],
  "metrics": [{"name": "...", "value": "...", "dataset": "..."}]
}
`

const ClassifyPrompt = `
# Task Context
You compare two research concepts and decide how the NEW concept relates to the OLD one.

# Background Data
NEW concept: %s
Description: %s

OLD concept: %s
Description: %s

# Detailed Task Description & Rules
- relation must be exactly one of: improves_on, extends, uses, evaluates, none.
- improves_on: NEW is presented as better than OLD on some axis.
- extends: NEW generalises or adds to OLD without claiming to be better.
- uses: NEW relies on OLD as a component.
- evaluates: NEW is a way to measure or compare OLD.
- none: no direct relation.
- When relation is improves_on, improvement_kind is one of: speed, quality, generalization, simplicity. Otherwise leave it empty.
- confidence is your certainty in [0,1].

# Output Formatting
{"relation": "...", "improvement_kind": "...", "confidence": 0.0, "rationale": "..."}
`
