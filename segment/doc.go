// Bounds generated text to a platform's maximum post length.
//
// Lengths are measured in grapheme clusters (what a user perceives as a character), which is how Bluesky counts its 300 character limit. All cut points fall on grapheme boundaries.
//
// In single-segment mode, over-long text is truncated: preferably at the end of a sentence, otherwise at a word boundary with an ellipsis, and as a last resort with a hard cut plus ellipsis. In thread mode, text is split losslessly into an ordered sequence of segments: paragraphs are packed greedily, over-long paragraphs are split at sentence boundaries, and over-long sentences at word boundaries.
package segment
