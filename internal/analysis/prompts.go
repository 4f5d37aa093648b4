package analysis

import (
	"encoding/json"
	"fmt"
)

const extractionSystemSuffix = `

You are now reviewing a FINISHED call, not talking to the driver.
Read the transcript and call exactly one function that records what the driver reported:
update_delivery_status for a check-in, report_emergency for an emergency.
If you cannot call a function, reply with a single JSON object holding the same fields.`

func extractionPrompt(transcript string) string {
	return fmt.Sprintf(`Transcript of the completed dispatch call:

%s

Record the outcome of this call.`, transcript)
}

const sentimentSystem = "You are a sentiment analysis expert. Return only valid JSON."

func sentimentPrompt(transcript string) string {
	return fmt.Sprintf(`Analyze the sentiment of this phone call between a dispatcher and a driver.

Conversation:
%s

Determine the overall sentiment (positive, negative, or neutral) and provide a confidence score (0.0 to 1.0).

Respond ONLY with valid JSON in this exact format:
{"sentiment": "positive", "confidence": 0.85, "reasoning": "brief explanation"}`, transcript)
}

const summarySystem = "You are a concise summarization expert. Be brief and factual."

func summaryPrompt(transcript string, facts map[string]any) string {
	var ctx string
	if len(facts) > 0 {
		if b, err := json.MarshalIndent(facts, "", "  "); err == nil {
			ctx = "Extracted Data: " + string(b) + "\n\n"
		}
	}
	if transcript != "" {
		ctx += "Conversation:\n" + transcript
	}
	return fmt.Sprintf(`Summarize this dispatch call in 1-2 sentences. Focus on the outcome and key information.

%s

Provide a concise summary (max 2 sentences):`, ctx)
}

const topicsSystem = "Extract key topics. Return only JSON array of strings."

// topicsTranscriptLimit bounds the transcript sent for topic extraction.
const topicsTranscriptLimit = 1000

func topicsPrompt(transcript string) string {
	if r := []rune(transcript); len(r) > topicsTranscriptLimit {
		transcript = string(r[:topicsTranscriptLimit])
	}
	return fmt.Sprintf(`Extract 3-5 key topics discussed in this call. Return ONLY a JSON array of topic strings.

Transcript:
%s

Example response: ["delay", "traffic", "eta_update", "location"]

Your response (JSON array only):`, transcript)
}
