package mcpserver

// EntryFormat describes how entry content is written, for LLM clients that
// create or edit entries.
const EntryFormat = `# Encyclopedia Entry Format

An entry is a single Markdown document identified by its title. The title is
also the file name (` + "`<Title>.md`" + `), so it must not contain ` + "`/`" + ` or ` + "`\\`" + `
and must not start with a dot. Titles are matched case-insensitively.

## Body

- Standard GitHub-flavoured Markdown (tables, strikethrough, task lists).
- Start with a level-one heading naming the subject: ` + "`# Python`" + `.
- Link to other entries with ` + "`[[Title]]`" + ` or ` + "`[[Title|shown text]]`" + `.
  Plain Markdown links of the form ` + "`[text](/entry/Title)`" + ` work too.
- Raw HTML is sanitized on display; scripts and event handlers are stripped.

## Optional frontmatter

` + "```" + `markdown
---
title: Python (programming language)
---

# Python

Python is a programming language. See also [[Django]].
` + "```" + `

The frontmatter ` + "`title`" + ` only changes the displayed heading; the entry is
still addressed by its file title.
`
