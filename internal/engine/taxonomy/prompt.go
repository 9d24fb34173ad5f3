package taxonomy

const generationSystem = `You are an experienced Site Reliability Engineer building incident taxonomies.
You read status page incident histories and group incidents by root cause so that reliability can be compared across companies.`

const generationInstructions = `

Requirements:
1. Generate 8-15 mutually exclusive categories covering most incidents.
2. Categories must be technology-agnostic, actionable for root cause analysis, and specific enough to be meaningful.
3. Each category needs a unique lowercase hyphenated id, a display name, a description, and identifying keywords.
4. Do not include a catch-all category; "other" is added automatically.

Output format (JSON array):
[
  {"id": "database-outage", "name": "Database Outage", "description": "Database unavailability or connection failures", "keywords": ["database", "postgres", "connection pool"]}
]

Return ONLY the JSON array.`
