// Prompt templates for generation cycles, and the rotation which picks between them.
//
// A [Selector] picks the template for the next cycle. It keeps a short history of recent choices in a [cachestore.CacheStore]; if the last two choices were the same template, the next choice is forced to be a different one, so no template is ever used three cycles in a row. Otherwise the choice is weighted-random.
//
// Template prompts are pongo2 (Django-syntax) templates, rendered against the context composed for each cycle.
package templates
