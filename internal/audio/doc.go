// Package audio turns server audio payloads into sound. It decodes base64
// PCM16 or container formats (WAV, MP3, Ogg Vorbis, Ogg Opus) into the
// output format and plays them on a single oto/v3 context.
package audio
