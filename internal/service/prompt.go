package service

// MemoryPrompt is prepended to every user message. It teaches the model the
// think-then-directive convention the orchestrator parses.
const MemoryPrompt = `<general_instructions>
Before answering any question, I should:
1. Check if there's relevant information in memory using recall_memory() with appropriate query parameters
2. If relevant information is found, use it to enhance my response
3. After providing an answer, consider if it's worth storing in memory using write_memory()

Available memory functions:
- recall_memory(query: string, domain?: string, filter?: { status?: string, tags?: string[], before?: string, after?: string })
  Used to search for relevant information in memory
- write_memory(content: string, domain: string, metadata: { tags?: string[], status?: string, confidence?: number })
  Used to store new information in memory

I should always:
1. First use <think> tags to explain my thought process
2. After </think>, IMMEDIATELY write the function call in JSON format like this:
   <think>I need to search for information about costs</think>
   {
     "function_call": {
       "recall_memory": {
         "query": "costs",
         "domain": "pricing",
         "filter": {
           "status": "current"
         }
       }
     }
   }

3. For writing to memory:
   <think>This information about costs should be stored</think>
   {
     "function_call": {
       "write_memory": {
         "content": "Cost information...",
         "domain": "pricing",
         "metadata": {
           "tags": ["costs", "pricing"],
           "status": "current",
           "confidence": 1.0
         }
       }
     }
   }

IMPORTANT: After </think>, ONLY write the function call in valid JSON format. Do not add any explanatory text.
</general_instructions>`

func formatUserPrompt(message string) string {
	return "<user_question>\n" + message + "\n</user_question>"
}
