// Package mcp implements the Model Context Protocol (MCP) server for docsearch.
//
// The server exposes the index to AI assistants over stdio:
//   - search: keyword (BM25) search
//   - vsearch: semantic search over embeddings
//   - query: fused keyword and semantic search, reranked by a language model
//   - get: full text of a document by display path
//   - status: index statistics
//   - update: re-scan collections and embed what changed
//
// # Basic Usage
//
// The server is started by the mcp command:
//
//	docsearch mcp
//
// It reads MCP messages from stdin and writes responses to stdout. Logs go to
// stderr.
//
// # Tool: query
//
//	Request:
//	{
//	  "name": "query",
//	  "arguments": {
//	    "query": "how do I run containers locally",
//	    "limit": 5,
//	    "collection": "notes"
//	  }
//	}
//
//	Response:
//	{
//	  "results": [
//	    {
//	      "rank": 1,
//	      "path": "notes/guides/docker.md",
//	      "title": "Docker containers",
//	      "score": 0.95,
//	      "collection": "notes",
//	      "context": "Personal engineering notes"
//	    }
//	  ],
//	  "metadata": {
//	    "total_results": 1,
//	    "search_mode": "query",
//	    "duration_ms": 840,
//	    "text_results": 3,
//	    "vector_results": 8,
//	    "reranked": 9
//	  }
//	}
//
// search and vsearch take the same arguments and answer in the same shape.
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "docsearch": {
//	      "command": "/usr/local/bin/docsearch",
//	      "args": ["mcp"],
//	      "env": {
//	        "OLLAMA_HOST": "localhost:11434"
//	      }
//	    }
//	  }
//	}
//
// # Error Handling
//
// Handlers return *MCPError values:
//
//	{
//	  "error": {
//	    "code": -32602,
//	    "message": "limit must be between 1 and 100",
//	    "data": {
//	      "param": "limit",
//	      "value": 500
//	    }
//	  }
//	}
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, filesystem, etc.)
//   - -32001: Collection or document not found
//   - -32002: Indexing in progress
//   - -32003: Model unavailable
//   - -32004: Empty query
package mcp
